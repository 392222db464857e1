package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestStdoutSink_Format(t *testing.T) {
	var buf bytes.Buffer
	sink := &StdoutSink{W: &buf}

	if err := sink.Handle(&Event{Kind: KindNode, Step: 2, NodeID: "fetch", Phase: PhaseStart}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Handle(&Event{Kind: KindDiagnostic, Scope: "router", Message: "skipped"}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "node=fetch") || !strings.Contains(lines[0], "step=2") {
		t.Fatalf("node line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "router: skipped") {
		t.Fatalf("diagnostic line = %q", lines[1])
	}
}

func TestChannelSink_FullReturnsError(t *testing.T) {
	ch := make(chan Event, 1)
	sink := NewChannelSink(ch)

	if err := sink.Handle(&Event{ID: "1"}); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	if err := sink.Handle(&Event{ID: "2"}); err == nil {
		t.Fatal("expected error on full channel")
	}

	got := <-ch
	if got.ID != "1" {
		t.Fatalf("forwarded event ID = %q", got.ID)
	}
}

func TestJSONLSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf)

	e := NewNode("s1", "fetch", 3, PhaseComplete)
	if err := sink.Handle(&e); err != nil {
		t.Fatal(err)
	}

	var decoded Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSONL output: %v", err)
	}
	if decoded.NodeID != "fetch" || decoded.Step != 3 || decoded.Phase != PhaseComplete {
		t.Fatalf("decoded = %+v", decoded)
	}
}
