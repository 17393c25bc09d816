// Package serial drives a 16550-compatible UART as a write-only log sink:
// COM1 at the legacy 0x3F8 port base, 8 data bits, no parity, one stop bit,
// no flow control.
package serial

import "github.com/Ewogijk/runeOS-sub002/kernel/cpu"

const (
	com1 = 0x3F8

	dataReg         = com1 + 0
	interruptEnable = com1 + 1
	fifoControl     = com1 + 2
	lineControl     = com1 + 3
	modemControl    = com1 + 4
	lineStatus      = com1 + 5

	divisorLatchLow  = com1 + 0
	divisorLatchHigh = com1 + 1

	dlab                = 0x80
	lineStatusTHREmpty  = 0x20
)

var (
	outbFn = cpu.Outb
	inbFn  = cpu.Inb
)

// Port is an io.Writer over a single UART; the zero value is ready to use
// once Init has programmed the hardware.
type Port struct{}

// COM1 is the port most hypervisors and real hardware wire to the legacy
// serial header.
var COM1 = Port{}

// Init disables UART interrupts, sets the baud-rate divisor for baudRate
// (the 16550's input clock is fixed at 115200 Hz), and enables a 14-byte
// FIFO.
func Init(baudRate uint32) {
	divisor := uint16(115200 / baudRate)

	outbFn(interruptEnable, 0x00)

	outbFn(lineControl, dlab)
	outbFn(divisorLatchLow, uint8(divisor&0xFF))
	outbFn(divisorLatchHigh, uint8(divisor>>8))

	outbFn(lineControl, 0x03) // 8N1, DLAB cleared
	outbFn(fifoControl, 0xC7) // enable FIFO, clear it, 14-byte threshold
	outbFn(modemControl, 0x0B)
}

// Write sends every byte of p out the UART, spinning on the line status
// register's transmit-holding-register-empty bit before each one.
func (Port) Write(p []byte) (int, error) {
	for _, b := range p {
		for inbFn(lineStatus)&lineStatusTHREmpty == 0 {
		}
		outbFn(dataReg, b)
	}
	return len(p), nil
}
