package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/krxlab/ipo-advisor/internal/workflow"
)

func TestEncoderFrameFormat(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	ev := workflow.Event{Type: workflow.EventUpdate, Update: &workflow.UpdatePayload{
		Role:     workflow.RoleIPOAgent,
		Response: "상장 안내",
		Topic:    "코스닥",
		Messages: []workflow.Message{{Role: workflow.RoleIPOAgent, Content: "상장 안내"}},
		Docs:     map[string][]string{workflow.RoleIPOAgent: {"doc"}},
	}}
	if err := enc.WriteEvent(ev); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "data: ") {
		t.Fatalf("frame missing data prefix: %q", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Fatalf("frame missing blank-line terminator: %q", out)
	}
	if !strings.Contains(out, `"type":"update"`) {
		t.Fatalf("frame missing type discriminator: %q", out)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	events := []workflow.Event{
		{Type: workflow.EventUpdate, Update: &workflow.UpdatePayload{
			Role:     workflow.RoleIPOAgent,
			Response: "유가증권시장 상장 절차입니다.",
			Topic:    "대형 제조사 상장",
			Messages: []workflow.Message{{Role: workflow.RoleIPOAgent, Content: "유가증권시장 상장 절차입니다."}},
			Docs:     map[string][]string{workflow.RoleIPOAgent: {"참고 자료"}},
		}},
		{Type: workflow.EventError, Error: &workflow.ErrorPayload{Message: "backend timeout"}},
		{Type: workflow.EventEnd},
	}
	for _, ev := range events {
		if err := enc.WriteEvent(ev); err != nil {
			t.Fatalf("WriteEvent(%s): %v", ev.Type, err)
		}
	}

	dec := NewDecoder(&buf)
	var decoded []workflow.Event
	for i, want := range events {
		got, err := dec.Next()
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if got.Type != want.Type {
			t.Fatalf("event %d: expected %s, got %s", i, want.Type, got.Type)
		}
		decoded = append(decoded, got)
	}

	want := events[0].Update
	got := decoded[0].Update
	if got.Role != want.Role || got.Response != want.Response || got.Topic != want.Topic {
		t.Fatalf("update payload mismatch: %+v", got)
	}
	if len(got.Messages) != 1 || got.Docs[workflow.RoleIPOAgent][0] != "참고 자료" {
		t.Fatalf("update payload lost nested data: %+v", got)
	}
	if decoded[1].Error == nil || decoded[1].Error.Message != "backend timeout" {
		t.Fatalf("error payload mismatch: %+v", decoded[1])
	}
}

func TestDecoderSkipsNonDataLines(t *testing.T) {
	stream := ": keepalive\n" +
		"event: custom\n" +
		"\n" +
		"data: {\"type\":\"update\",\"data\":{\"role\":\"IPO_AGENT\",\"response\":\"r\",\"topic\":\"t\",\"messages\":[],\"docs\":{}}}\n\n" +
		"data: {\"type\":\"end\",\"data\":{}}\n\n"

	dec := NewDecoder(strings.NewReader(stream))
	ev, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Type != workflow.EventUpdate || ev.Update.Response != "r" {
		t.Fatalf("expected update through the noise, got %+v", ev)
	}
	ev, err = dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Type != workflow.EventEnd {
		t.Fatalf("expected end, got %s", ev.Type)
	}
}

func TestDecoderMalformedFrameIsRecoverable(t *testing.T) {
	stream := "data: {not json}\n\n" +
		"data: {\"type\":\"weird\",\"data\":{}}\n\n" +
		"data: {\"type\":\"end\",\"data\":{}}\n\n"

	dec := NewDecoder(strings.NewReader(stream))

	for i := 0; i < 2; i++ {
		_, err := dec.Next()
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("frame %d: expected *ParseError, got %v", i, err)
		}
	}

	ev, err := dec.Next()
	if err != nil {
		t.Fatalf("Next after malformed frames: %v", err)
	}
	if ev.Type != workflow.EventEnd {
		t.Fatalf("expected end, got %s", ev.Type)
	}
}

func TestDecoderStopsAtEnd(t *testing.T) {
	stream := "data: {\"type\":\"end\",\"data\":{}}\n\n" +
		"data: {\"type\":\"update\",\"data\":{\"role\":\"IPO_AGENT\",\"response\":\"ghost\",\"topic\":\"t\",\"messages\":[],\"docs\":{}}}\n\n"

	dec := NewDecoder(strings.NewReader(stream))
	ev, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Type != workflow.EventEnd {
		t.Fatalf("expected end, got %s", ev.Type)
	}

	// Frames after end are never surfaced.
	if _, err := dec.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after end, got %v", err)
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF to be sticky, got %v", err)
	}
}

func TestDecoderEOFWithoutEnd(t *testing.T) {
	stream := "data: {\"type\":\"update\",\"data\":{\"role\":\"IPO_AGENT\",\"response\":\"r\",\"topic\":\"t\",\"messages\":[],\"docs\":{}}}\n\n"

	dec := NewDecoder(strings.NewReader(stream))
	if _, err := dec.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF when bytes run out, got %v", err)
	}
}

func TestEncoderRejectsMissingPayload(t *testing.T) {
	enc := NewEncoder(&bytes.Buffer{})
	if err := enc.WriteEvent(workflow.Event{Type: workflow.EventUpdate}); err == nil {
		t.Fatal("expected error for update event without payload")
	}
	if err := enc.WriteEvent(workflow.Event{Type: workflow.EventType("bogus")}); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
