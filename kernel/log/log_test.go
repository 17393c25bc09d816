package log

import (
	"bytes"
	"testing"
)

func TestLoggerFansOutByLevel(t *testing.T) {
	var serial, console bytes.Buffer

	l := New("vmm")
	l.AddSink(&serial, Trace)
	l.AddSink(&console, Warn)

	l.Debug("allocated %d frames", 3)
	l.Error("page fault at %x", 0xdead)

	if got := serial.String(); got != "[DEBUG] [vmm] allocated 3 frames\n[ERROR] [vmm] page fault at dead\n" {
		t.Fatalf("unexpected serial sink contents: %q", got)
	}

	if got := console.String(); got != "[ERROR] [vmm] page fault at dead\n" {
		t.Fatalf("expected console sink to only see the Error record; got %q", got)
	}
}

func TestPendingSinkBuffersUntilAttached(t *testing.T) {
	var p PendingSink
	p.Write([]byte("before mount\n"))

	var file bytes.Buffer
	if err := p.Attach(&file); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := file.String(); got != "before mount\n" {
		t.Fatalf("expected buffered record to flush; got %q", got)
	}

	p.Write([]byte("after mount\n"))
	if got := file.String(); got != "before mount\nafter mount\n" {
		t.Fatalf("expected live writes to pass through; got %q", got)
	}
}
