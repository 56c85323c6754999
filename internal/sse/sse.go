// Package sse implements the wire protocol between the workflow engine and
// its clients: UTF-8 frames of the form `data: <json>\n\n` where the JSON is
// an envelope {"type": "update"|"error"|"end", "data": {...}}.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/krxlab/ipo-advisor/internal/workflow"
)

const dataPrefix = "data: "

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encoder frames workflow events onto a writer, flushing after each frame
// when the writer supports it.
type Encoder struct {
	w io.Writer
	f http.Flusher
}

func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.f = f
	}
	return e
}

// WriteEvent serializes one event as a single SSE frame.
func (e *Encoder) WriteEvent(ev workflow.Event) error {
	var data interface{}
	switch ev.Type {
	case workflow.EventUpdate:
		if ev.Update == nil {
			return fmt.Errorf("update event without payload")
		}
		data = ev.Update
	case workflow.EventError:
		if ev.Error == nil {
			return fmt.Errorf("error event without payload")
		}
		data = ev.Error
	case workflow.EventEnd:
		data = struct{}{}
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event payload: %w", err)
	}
	frame, err := json.Marshal(envelope{Type: string(ev.Type), Data: raw})
	if err != nil {
		return fmt.Errorf("marshaling event envelope: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "%s%s\n\n", dataPrefix, frame); err != nil {
		return err
	}
	if e.f != nil {
		e.f.Flush()
	}
	return nil
}

// ParseError reports one malformed frame. It is recoverable: callers log it
// and keep calling Next.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parsing frame %q: %v", e.Line, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Decoder reads frames from a byte stream. Blank lines and lines without the
// data prefix are skipped. After an end event it stops reading regardless of
// remaining bytes; further calls return io.EOF.
type Decoder struct {
	r    *bufio.Reader
	done bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next decoded event. A *ParseError is returned for a
// malformed frame and the stream remains readable; io.EOF marks the end of
// the stream (either the end event was seen or the bytes ran out).
func (d *Decoder) Next() (workflow.Event, error) {
	if d.done {
		return workflow.Event{}, io.EOF
	}

	for {
		line, err := d.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if line == "" || !strings.HasPrefix(line, dataPrefix) {
			if err != nil {
				d.done = true
				return workflow.Event{}, io.EOF
			}
			continue
		}

		ev, decErr := d.decodeFrame(line[len(dataPrefix):])
		if decErr != nil {
			if err != nil {
				d.done = true
			}
			return workflow.Event{}, decErr
		}
		if ev.Type == workflow.EventEnd {
			d.done = true
		}
		return ev, nil
	}
}

func (d *Decoder) decodeFrame(payload string) (workflow.Event, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return workflow.Event{}, &ParseError{Line: payload, Err: err}
	}

	switch workflow.EventType(env.Type) {
	case workflow.EventUpdate:
		var up workflow.UpdatePayload
		if err := json.Unmarshal(env.Data, &up); err != nil {
			return workflow.Event{}, &ParseError{Line: payload, Err: err}
		}
		return workflow.Event{Type: workflow.EventUpdate, Update: &up}, nil
	case workflow.EventError:
		var ep workflow.ErrorPayload
		if err := json.Unmarshal(env.Data, &ep); err != nil {
			return workflow.Event{}, &ParseError{Line: payload, Err: err}
		}
		return workflow.Event{Type: workflow.EventError, Error: &ep}, nil
	case workflow.EventEnd:
		return workflow.Event{Type: workflow.EventEnd}, nil
	default:
		return workflow.Event{}, &ParseError{Line: payload, Err: fmt.Errorf("unknown event type %q", env.Type)}
	}
}
