package workflow

import (
	"context"
	"fmt"
)

// Terminal is the sentinel returned by a NextFunc when the run is complete.
const Terminal = "__terminal__"

// Node is one unit of work in the workflow graph: one agent's turn.
type Node interface {
	Name() string
	Run(ctx context.Context, st *State) (response string, err error)
}

// NextFunc decides the node after prev as a pure function of state. Returning
// Terminal ends the run. Both the single-node advisory topology and an
// N-node round-based one are expressible through it.
type NextFunc func(st *State, prev string) string

// Graph is a directed graph of named nodes with conditional edges.
type Graph struct {
	nodes map[string]Node
	entry string
	next  NextFunc
}

// NewGraph builds a graph from nodes, an entry node name and an edge
// function.
func NewGraph(entry string, next NextFunc, nodes ...Node) (*Graph, error) {
	if next == nil {
		return nil, fmt.Errorf("next function required")
	}
	m := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if _, dup := m[n.Name()]; dup {
			return nil, fmt.Errorf("duplicate node %q", n.Name())
		}
		m[n.Name()] = n
	}
	if _, ok := m[entry]; !ok {
		return nil, fmt.Errorf("entry node %q not in graph", entry)
	}
	return &Graph{nodes: m, entry: entry, next: next}, nil
}

// NewAdvisoryGraph wires the production topology: a single advisor node that
// terminates after one turn.
func NewAdvisoryGraph(advisor Node) (*Graph, error) {
	return NewGraph(advisor.Name(), func(*State, string) string { return Terminal }, advisor)
}
