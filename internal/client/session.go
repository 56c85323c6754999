package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"

	"github.com/krxlab/ipo-advisor/internal/sse"
	"github.com/krxlab/ipo-advisor/internal/store"
	"github.com/krxlab/ipo-advisor/internal/workflow"
)

// Mode is the UI mode of a client session.
type Mode string

const (
	ModeInput   Mode = "input"
	ModeRunning Mode = "running"
	ModeResults Mode = "results"
)

// HistoryCreator is the persistence boundary the session writes completed
// turns to. The API client implements it.
type HistoryCreator interface {
	CreateHistory(ctx context.Context, topic, messages, docs string) (store.AdviceItem, error)
}

// Session is the client-side state machine. It consumes decoded stream
// events, tracks UI mode and mirrors the latest snapshot. No global state:
// every handler receives the session explicitly.
type Session struct {
	Mode            Mode
	ViewingHistory  bool
	LoadedHistoryID int64 // 0 = none
	Topic           string
	Messages        []workflow.Message
	Docs            map[string][]string
	LastError       string

	history HistoryCreator
	logger  *log.Logger
}

func NewSession(history HistoryCreator) *Session {
	s := &Session{
		history: history,
		logger:  log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	s.StartNew()
	return s
}

// StartNew resets the session to a fresh input state.
func (s *Session) StartNew() {
	s.Mode = ModeInput
	s.ViewingHistory = false
	s.LoadedHistoryID = 0
	s.Topic = ""
	s.Messages = nil
	s.Docs = map[string][]string{}
	s.LastError = ""
}

// Begin marks the start of a run.
func (s *Session) Begin(topic string) {
	s.Mode = ModeRunning
	s.ViewingHistory = false
	s.Topic = topic
	s.LastError = ""
}

// Apply feeds one stream event into the state machine. It reports true when
// the stream is finished. Update events are full snapshots: they overwrite
// the mirrored state and persist the turn; the record written for the last
// update before end is the authoritative one.
func (s *Session) Apply(ctx context.Context, ev workflow.Event) (done bool) {
	switch ev.Type {
	case workflow.EventUpdate:
		up := ev.Update
		if up == nil {
			return false
		}
		s.Topic = up.Topic
		s.Messages = up.Messages
		s.Docs = up.Docs
		s.Mode = ModeResults
		s.ViewingHistory = false
		s.persist(ctx, up)
		return false
	case workflow.EventError:
		if ev.Error != nil {
			s.LastError = ev.Error.Message
		}
		return false
	case workflow.EventEnd:
		return true
	default:
		return false
	}
}

// persist writes the snapshot through the history boundary. Losing a
// completed turn silently would be a data-loss bug, so failures are logged.
func (s *Session) persist(ctx context.Context, up *workflow.UpdatePayload) {
	if s.history == nil {
		return
	}
	messages, err := json.Marshal(up.Messages)
	if err != nil {
		s.logger.Printf("marshaling messages for persistence: %v", err)
		return
	}
	docs := ""
	if len(up.Docs) > 0 {
		raw, err := json.Marshal(up.Docs)
		if err != nil {
			s.logger.Printf("marshaling docs for persistence: %v", err)
		} else {
			docs = string(raw)
		}
	}
	item, err := s.history.CreateHistory(ctx, up.Topic, string(messages), docs)
	if err != nil {
		s.logger.Printf("persisting advice failed: %v", err)
		return
	}
	s.logger.Printf("advice persisted as item %d", item.ID)
}

// LoadHistory jumps straight to results from a persisted record without
// contacting the workflow endpoint.
func (s *Session) LoadHistory(item store.AdviceItem) error {
	var messages []workflow.Message
	if err := json.Unmarshal([]byte(item.Messages), &messages); err != nil {
		return err
	}
	docs := map[string][]string{}
	if item.Docs != "" {
		if err := json.Unmarshal([]byte(item.Docs), &docs); err != nil {
			return err
		}
	}
	s.Mode = ModeResults
	s.ViewingHistory = true
	s.LoadedHistoryID = item.ID
	s.Topic = item.Topic
	s.Messages = messages
	s.Docs = docs
	s.LastError = ""
	return nil
}

// ReadStream drains an SSE body through the state machine until the end
// event. Malformed frames are logged and skipped. Closing the body (or
// cancelling ctx) stops the loop; snapshots keep partial reads harmless.
func (s *Session) ReadStream(ctx context.Context, body io.ReadCloser) error {
	defer body.Close()
	dec := sse.NewDecoder(body)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := dec.Next()
		if err != nil {
			var pe *sse.ParseError
			if errors.As(err, &pe) {
				s.logger.Printf("skipping malformed frame: %v", pe)
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if s.Apply(ctx, ev) {
			return nil
		}
	}
}
