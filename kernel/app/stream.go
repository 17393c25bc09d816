package app

import (
	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/driver/tty"
	"github.com/Ewogijk/runeOS-sub002/kernel/driver/video/console"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

var errStreamIsWriteOnly = &kernel.Error{Module: "app", Message: "stream does not support reading"}
var errStreamIsReadOnly = &kernel.Error{Module: "app", Message: "stream does not support writing"}

// Stream is one end of a running app's stdin/stdout/stderr wiring: the
// display, a PS/2 keyboard feed, an open vfs.Node, or a discard target.
type Stream interface {
	Read(buf []byte) (int, *kernel.Error)
	Write(buf []byte) (int, *kernel.Error)
	Close() *kernel.Error
}

// voidStream discards every write and never yields a read, backing
// TargetVoid.
type voidStream struct{}

func (voidStream) Read(buf []byte) (int, *kernel.Error)  { return 0, errStreamIsWriteOnly }
func (voidStream) Write(buf []byte) (int, *kernel.Error) { return len(buf), nil }
func (voidStream) Close() *kernel.Error                  { return nil }

// consoleOutStream writes to the active terminal in a fixed color, giving
// stdout and stderr their conventional white/red distinction.
type consoleOutStream struct {
	term *tty.Vt
	fg   console.Attr
}

func (s consoleOutStream) Read(buf []byte) (int, *kernel.Error) { return 0, errStreamIsWriteOnly }
func (s consoleOutStream) Write(buf []byte) (int, *kernel.Error) {
	n, _ := s.term.WriteColored(buf, s.fg)
	return n, nil
}
func (s consoleOutStream) Close() *kernel.Error { return nil }

// keyboardInStream reads decoded key events off the PS/2 ring buffer,
// packing each VirtualKey into 2 bytes: the row in the first byte and the
// column in the second, with the top bit of the second byte set on key
// release.
type keyboardInStream struct {
	readFn func() (row, col uint8, released, none bool)
}

func (s keyboardInStream) Write(buf []byte) (int, *kernel.Error) { return 0, errStreamIsReadOnly }
func (s keyboardInStream) Close() *kernel.Error                  { return nil }
func (s keyboardInStream) Read(buf []byte) (int, *kernel.Error) {
	if len(buf) < 2 {
		return 0, errStreamIsReadOnly
	}
	for {
		row, col, released, none := s.readFn()
		if none {
			continue
		}
		buf[0] = row
		buf[1] = col
		if released {
			buf[1] |= 0x80
		}
		return 2, nil
	}
}

// nodeStream adapts an open vfs.Node to Stream, backing TargetFile.
type nodeStream struct {
	node vfs.Node
}

func (s nodeStream) Read(buf []byte) (int, *kernel.Error)  { return s.node.Read(buf) }
func (s nodeStream) Write(buf []byte) (int, *kernel.Error) { return s.node.Write(buf) }
func (s nodeStream) Close() *kernel.Error                  { return s.node.Close() }
