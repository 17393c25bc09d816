package log

import "bytes"

// PendingSink buffers written bytes in memory until Attach is called with the
// real destination, at which point the buffered bytes are flushed and every
// subsequent write goes straight to the attached writer. It exists so that
// the file log sink can be registered before the root FAT32 volume is
// mounted: early records are not lost, just delayed.
type PendingSink struct {
	buf      bytes.Buffer
	attached attachedWriter
}

type attachedWriter interface {
	Write(p []byte) (int, error)
}

// Write buffers p until Attach has been called, after which it forwards to
// the attached writer.
func (p *PendingSink) Write(b []byte) (int, error) {
	if p.attached != nil {
		return p.attached.Write(b)
	}
	return p.buf.Write(b)
}

// Attach flushes any buffered records to w and forwards all future writes to
// it. Calling Attach more than once replaces the destination but does not
// re-flush already-flushed bytes.
func (p *PendingSink) Attach(w attachedWriter) error {
	if p.buf.Len() > 0 {
		if _, err := w.Write(p.buf.Bytes()); err != nil {
			return err
		}
		p.buf.Reset()
	}
	p.attached = w
	return nil
}
