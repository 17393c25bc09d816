// Package pic drives the legacy 8259 programmable interrupt controller
// pair, remapping the master/slave IRQ lines past the CPU exception range
// and gating individual lines through the interrupt mask register.
package pic

import "github.com/Ewogijk/runeOS-sub002/kernel/cpu"

const (
	command1 = 0x20
	data1    = 0x21
	command2 = 0xA0
	data2    = 0xA1

	icw1RequireICW4 = 0x01
	icw1Init        = 0x10

	icw4Mode8086 = 0x01

	// pic2Input is the master PIC's ICW3: the cascade line the slave is
	// wired to (IRQ2, our cascade setup uses bit 2).
	pic2Input = 0x04

	// pic2ID is the slave PIC's ICW3: its cascade identity.
	pic2ID = 0x02

	cmdEOI     = 0x20
	cmdReadIRR = 0x0A
	cmdReadISR = 0x0B
)

// IRQOffset is the vector number the master PIC's IRQ0 is remapped to.
// Chosen past the 32 reserved CPU exception vectors.
const IRQOffset = 0x20

var (
	outbFn  = cpu.Outb
	inbFn   = cpu.Inb
	ioWaitFn = cpu.IOWait

	// imr mirrors the hardware interrupt mask register across both PICs;
	// bit n corresponds to IRQ n. Cached so mask/clearMask don't need a
	// round trip through the hardware to read back the other PIC's half.
	imr uint16 = 0xFFFF
)

// Init remaps the master and slave PICs so IRQ0-15 land on vectors
// IRQOffset..IRQOffset+15 instead of colliding with CPU exception vectors
// 0-15, then masks every line. Callers enable individual lines with
// Unmask once their handler is registered via irq.HandleIRQ.
func Init() {
	outbFn(command1, icw1RequireICW4|icw1Init)
	ioWaitFn()
	outbFn(data1, IRQOffset)
	ioWaitFn()
	outbFn(data1, pic2Input)
	ioWaitFn()
	outbFn(data1, icw4Mode8086)
	ioWaitFn()

	outbFn(command2, icw1RequireICW4|icw1Init)
	ioWaitFn()
	outbFn(data2, IRQOffset+8)
	ioWaitFn()
	outbFn(data2, pic2ID)
	ioWaitFn()
	outbFn(data2, icw4Mode8086)
	ioWaitFn()

	MaskAll()
}

// Mask disables delivery of the given IRQ line.
func Mask(irqLine uint8) {
	imr |= 1 << irqLine
	updateIMR(irqLine)
}

// Unmask enables delivery of the given IRQ line.
func Unmask(irqLine uint8) {
	imr &^= 1 << irqLine
	updateIMR(irqLine)
}

// MaskAll disables delivery of every IRQ line on both PICs.
func MaskAll() {
	imr = 0xFFFF
	outbFn(data1, uint8(imr&0xFF))
	ioWaitFn()
	outbFn(data2, uint8(imr>>8))
	ioWaitFn()
}

// SendEOI signals the end of interrupt handling for irqLine. Must be called
// by every IRQ handler before returning, or the PIC will withhold further
// interrupts on that line (and, for lines >= 8, on the slave PIC entirely).
func SendEOI(irqLine uint8) {
	if irqLine >= 8 {
		outbFn(command2, cmdEOI)
	}
	outbFn(command1, cmdEOI)
}

// IsRequested reports whether irqLine currently has an interrupt pending in
// the interrupt request register.
func IsRequested(irqLine uint8) bool {
	return checkBit(readRegister(cmdReadIRR), irqLine)
}

// IsInService reports whether irqLine is currently being serviced, per the
// in-service register.
func IsInService(irqLine uint8) bool {
	return checkBit(readRegister(cmdReadISR), irqLine)
}

// IsMasked reports whether irqLine is currently masked.
func IsMasked(irqLine uint8) bool {
	return checkBit(imr, irqLine)
}

// Probe detects whether a PIC is present by toggling a bit in the interrupt
// mask register and reading it back. The 8259 mirrors every write to its
// IMR; an absent or floating port reads back unchanged or garbled.
func Probe() bool {
	saved := inbFn(data1)
	ioWaitFn()
	outbFn(data1, saved^0xAA)
	ioWaitFn()
	readBack := inbFn(data1)
	outbFn(data1, saved)
	ioWaitFn()
	return readBack == saved^0xAA
}

func updateIMR(irqLine uint8) {
	if irqLine < 8 {
		outbFn(data1, uint8(imr&0xFF))
	} else {
		outbFn(data2, uint8(imr>>8))
	}
}

func readRegister(readCmd uint8) uint16 {
	outbFn(command1, readCmd)
	ioWaitFn()
	outbFn(command2, readCmd)
	ioWaitFn()
	return uint16(inbFn(data2))<<8 | uint16(inbFn(data1))
}

func checkBit(v uint16, bit uint8) bool {
	return v&(1<<bit) != 0
}
