package workflow

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultPacing is the yield after each emitted event, giving the transport a
// chance to flush before the next node runs. Pacing, not correctness.
const DefaultPacing = 10 * time.Millisecond

// Engine advances a graph node by node, emitting one snapshot event per
// completed node and exactly one end event per run.
type Engine struct {
	graph  *Graph
	pacing time.Duration
	logger *log.Logger
}

// EngineOption configures engine behaviour.
type EngineOption func(*Engine)

// WithPacing overrides the post-event yield. Zero disables it (tests).
func WithPacing(d time.Duration) EngineOption {
	return func(e *Engine) { e.pacing = d }
}

func NewEngine(g *Graph, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:  g,
		pacing: DefaultPacing,
		logger: log.New(log.Writer(), "[WF] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the graph against the state and streams events. The returned
// channel always delivers a final end event and is then closed, regardless of
// node failures, so consumers terminate deterministically. A cancelled
// context stops emission; the channel still closes.
func (e *Engine) Run(ctx context.Context, st *State) <-chan Event {
	ch := make(chan Event, 8)

	go func() {
		defer close(ch)

		emit := func(ev Event) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- ev:
				return true
			}
		}

		current := e.graph.entry
		for current != Terminal {
			node, ok := e.graph.nodes[current]
			if !ok {
				e.logger.Printf("run %s: unknown node %q", st.SessionID, current)
				emit(Event{Type: EventError, Error: &ErrorPayload{Message: fmt.Sprintf("unknown node %q", current)}})
				break
			}

			response, err := node.Run(ctx, st)
			if err != nil {
				e.logger.Printf("run %s: node %s failed: %v", st.SessionID, current, err)
				emit(Event{Type: EventError, Error: &ErrorPayload{Message: err.Error()}})
				break
			}

			st.PrevNode = current
			if !emit(snapshot(st, node.Name(), response)) {
				break
			}
			if e.pacing > 0 {
				time.Sleep(e.pacing)
			}

			current = e.graph.next(st, current)
		}

		emit(Event{Type: EventEnd})
	}()

	return ch
}
