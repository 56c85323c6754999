package workflow

// EventType discriminates stream event variants.
type EventType string

const (
	EventUpdate EventType = "update"
	EventError  EventType = "error"
	EventEnd    EventType = "end"
)

// UpdatePayload is a full snapshot of the run after a node completed, not a
// delta. Consumers overwrite their state with each one.
type UpdatePayload struct {
	Role     string              `json:"role"`
	Response string              `json:"response"`
	Topic    string              `json:"topic"`
	Messages []Message           `json:"messages"`
	Docs     map[string][]string `json:"docs"`
}

// ErrorPayload carries a fatal run failure to the client before the stream
// terminates.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Event is the discriminated union streamed from the engine. Exactly one of
// Update/Error is set, matching Type; End carries no payload.
type Event struct {
	Type   EventType
	Update *UpdatePayload
	Error  *ErrorPayload
}

// snapshot builds an update event with copies of the mutable state so later
// node executions cannot race the transport.
func snapshot(st *State, role, response string) Event {
	messages := make([]Message, len(st.Messages))
	copy(messages, st.Messages)
	docs := make(map[string][]string, len(st.Docs))
	for k, v := range st.Docs {
		vv := make([]string, len(v))
		copy(vv, v)
		docs[k] = vv
	}
	return Event{
		Type: EventUpdate,
		Update: &UpdatePayload{
			Role:     role,
			Response: response,
			Topic:    st.Topic,
			Messages: messages,
			Docs:     docs,
		},
	}
}
