package kfmt

import (
	"bytes"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &PrefixWriter{Sink: &buf, Prefix: []byte("[INFO] ")}

	w.Write([]byte("line one\nline two\n"))
	w.Write([]byte("line three"))

	exp := "[INFO] line one\n[INFO] line two\n[INFO] line three"
	if got := buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}

func TestPrefixWriterEmptyWrite(t *testing.T) {
	var buf bytes.Buffer
	w := &PrefixWriter{Sink: &buf, Prefix: []byte("> ")}

	w.Write(nil)
	if got := buf.String(); got != "" {
		t.Fatalf("expected empty write to emit no prefix; got %q", got)
	}
}
