// Package ps2 drives the legacy PS/2 keyboard controller: a scan-code-set-1
// decoder feeding a ring buffer of virtual key codes, serviced from IRQ1.
package ps2

import (
	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/cpu"
	"github.com/Ewogijk/runeOS-sub002/kernel/irq"
)

const (
	dataPort = 0x60

	// extendedByte prefixes the scan code of an "E0"-extended key (e.g. the
	// right Ctrl/Alt, arrow keys); the following byte indexes e0ScanCodes
	// instead of scanCodes.
	extendedByte = 0xE0

	ringBufferSize = 256

	deviceID = 0
)

// VirtualKey identifies a physical key by its position in an 8-row,
// 32-column matrix, plus whether this event is a press or a release. Rows
// and columns are stable across scan code sets; layout-specific translation
// to a character happens above this package.
type VirtualKey struct {
	Row      uint8
	Col      uint8
	Released bool
	none     bool
}

// None reports whether this VirtualKey represents the absence of a key
// event, e.g. an unmapped or unrecognized scan code.
func (k VirtualKey) None() bool {
	return k.none
}

var noneKey = VirtualKey{none: true}

var (
	inbFn               = cpu.Inb
	installIRQHandlerFn = irq.InstallIRQHandler

	scanCodeDecoder   [256]VirtualKey
	e0ScanCodeDecoder [256]VirtualKey

	ringBuf  [ringBufferSize]VirtualKey
	ringHead uint8
	ringTail uint8

	waitingForE0 bool

	started bool
)

var errAlreadyStarted = &kernel.Error{Module: "ps2", Message: "ps2 keyboard already started"}

// Start builds the scan-code-set-1 decode tables and installs the IRQ1
// handler. Safe to call exactly once.
func Start() *kernel.Error {
	if started {
		return errAlreadyStarted
	}
	buildScanCodeSetOne()

	if err := installIRQHandlerFn(irq.KeyboardIRQ, deviceID, "PS2 Keyboard", onIRQ); err != nil {
		return err
	}
	started = true
	return nil
}

// Read pops the oldest buffered key event, or reports None() if the buffer
// is empty.
func Read() VirtualKey {
	if ringHead == ringTail {
		return noneKey
	}
	k := ringBuf[ringHead]
	ringHead++
	return k
}

// Flush discards every buffered key event.
func Flush() {
	ringHead = 0
	ringTail = 0
}

func onIRQ(frame *irq.Frame, regs *irq.Regs) {
	scanCode := inbFn(dataPort)
	if scanCode == extendedByte {
		waitingForE0 = true
		return
	}

	var key VirtualKey
	if waitingForE0 {
		key = e0ScanCodeDecoder[scanCode]
		waitingForE0 = false
	} else {
		key = scanCodeDecoder[scanCode]
	}

	if !key.None() {
		ringBuf[ringTail] = key
		ringTail++
	}
}

// scanSetOneRows/scanSetOneCols describe the 6x21 matrix the scan-code-set-1
// make/break codes below are laid out in; a key spanning more than one
// physical position (e.g. space) simply repeats its code.
const (
	scanSetOneRows = 6
	scanSetOneCols = 21
)

// scanCodes/e0ScanCodes are the make codes (key press) for every matrix
// position; the corresponding break code (key release) is the make code
// with bit 7 set, per the PS/2 scan-code-set-1 convention. A 0 entry means
// no key occupies that matrix position.
var scanCodes = [scanSetOneRows * scanSetOneCols]uint8{
	0x01, 0x3B, 0x3C, 0x3D, 0x3E, 0x3F, 0x40, 0x41, 0x42, 0x43, 0x44, 0x57, 0x58, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x29, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x00, 0x46, 0x00, 0x45, 0x00, 0x37, 0x4A,
	0x0F, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1A, 0x1B, 0x1C, 0x00, 0x00, 0x00, 0x47, 0x48, 0x49, 0x4E,
	0x3A, 0x1E, 0x1F, 0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x28, 0x2B, 0x1C, 0x00, 0x00, 0x00, 0x4B, 0x4C, 0x4D, 0x4E,
	0x2A, 0x56, 0x2C, 0x2D, 0x2E, 0x2F, 0x30, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x00, 0x00, 0x00, 0x00, 0x4F, 0x50, 0x51, 0x00,
	0x1D, 0x00, 0x38, 0x39, 0x39, 0x39, 0x39, 0x39, 0x39, 0x39, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x52, 0x52, 0x53, 0x00,
}

var e0ScanCodes = [scanSetOneRows * scanSetOneCols]uint8{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x5F, 0x63, 0x5E, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x35, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x52, 0x47, 0x49, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x53, 0x4F, 0x51, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x48, 0x00, 0x00, 0x00, 0x00, 0x1C,
	0x00, 0x5B, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x38, 0x5C, 0x5D, 0x1D, 0x4B, 0x50, 0x4D, 0x00, 0x00, 0x00, 0x1C,
}

func buildScanCodeSetOne() {
	for i := 0; i < scanSetOneRows; i++ {
		for j := 0; j < scanSetOneCols; j++ {
			pos := i*scanSetOneCols + j
			if sc := scanCodes[pos]; sc > 0 {
				insertKeyCode(&scanCodeDecoder, sc, uint8(i), uint8(j))
			}
			if sc := e0ScanCodes[pos]; sc > 0 {
				insertKeyCode(&e0ScanCodeDecoder, sc, uint8(i), uint8(j))
			}
		}
	}
}

func insertKeyCode(decoder *[256]VirtualKey, scanCode, row, col uint8) {
	decoder[scanCode] = VirtualKey{Row: row, Col: col, Released: false}
	decoder[scanCode|0x80] = VirtualKey{Row: row, Col: col, Released: true}
}
