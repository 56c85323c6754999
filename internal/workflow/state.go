package workflow

// RoleIPOAgent is the single agent role in the shipped advisory topology:
// a KRX listing examiner.
const RoleIPOAgent = "IPO_AGENT"

// StartNode is the prev-node marker before any node has run.
const StartNode = "START"

// Message is one entry in the append-only conversation log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the mutable workflow state for one run. It is written only by the
// engine goroutine; events carry copies.
type State struct {
	SessionID string
	Topic     string
	Messages  []Message
	Docs      map[string][]string
	Contexts  map[string]string
	PrevNode  string
}

// NewState creates a fresh per-run state. Runs never share state.
func NewState(sessionID, topic string) *State {
	return &State{
		SessionID: sessionID,
		Topic:     topic,
		Messages:  []Message{},
		Docs:      map[string][]string{},
		Contexts:  map[string]string{},
		PrevNode:  StartNode,
	}
}
