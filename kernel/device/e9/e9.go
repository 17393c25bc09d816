// Package e9 implements the Bochs/QEMU "0xE9 debug port": a write-only byte
// sink most emulators echo straight to their own stdout, independent of
// anything the guest has set up for its console or serial port.
package e9

import "github.com/Ewogijk/runeOS-sub002/kernel/cpu"

const port = 0xE9

var outbFn = cpu.Outb

// Port is an io.Writer over the 0xE9 debug port. The zero value is ready to
// use; there is no hardware state to program.
type Port struct{}

// Default is the only instance callers need; the port has no per-writer
// state.
var Default = Port{}

// Write sends every byte of p out the debug port.
func (Port) Write(p []byte) (int, error) {
	for _, b := range p {
		outbFn(port, b)
	}
	return len(p), nil
}
