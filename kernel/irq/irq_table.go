package irq

import "github.com/Ewogijk/runeOS-sub002/kernel"

// irqLineCount is the number of hardware interrupt lines exposed by the
// legacy cascaded 8259 PIC pair (master + slave, IRQ0-15).
const irqLineCount = 16

// irqDeviceHandler is one entry of an IRQ line's device handler list.
type irqDeviceHandler struct {
	deviceID     uint32
	deviceName   string
	handledCount uint64
	handler      IRQHandler
}

// irqTableEntry is one row of the IRQ table: a raised counter, a counter of
// interrupts that fired with nothing installed to service them, and the list
// of devices sharing the line.
type irqTableEntry struct {
	raised      uint64
	leftPending uint64
	handlers    []irqDeviceHandler
	gateOpen    bool
}

var irqTable [irqLineCount]irqTableEntry

var (
	errIRQHandlerExists   = &kernel.Error{Module: "irq", Message: "a handler is already installed for this device on this IRQ line"}
	errIRQHandlerNotFound = &kernel.Error{Module: "irq", Message: "no handler installed for this device on this IRQ line"}

	// handleIRQFn/endOfInterruptFn are used by tests to mock the asm-backed
	// gate primitives and are automatically inlined by the compiler.
	handleIRQFn      = HandleIRQ
	endOfInterruptFn = EndOfInterrupt
)

// InstallIRQHandler adds handler to the list of device handlers for irqNum,
// tagged with deviceID/deviceName so it can later be removed via
// UninstallIRQHandler. The first handler installed for a line opens the
// gate in the IDT via HandleIRQ; subsequent handlers for the same line just
// extend the list that the shared dispatcher below walks.
func InstallIRQHandler(irqNum IRQNum, deviceID uint32, deviceName string, handler IRQHandler) *kernel.Error {
	entry := &irqTable[irqNum]
	for i := range entry.handlers {
		if entry.handlers[i].deviceID == deviceID {
			return errIRQHandlerExists
		}
	}

	entry.handlers = append(entry.handlers, irqDeviceHandler{
		deviceID:   deviceID,
		deviceName: deviceName,
		handler:    handler,
	})

	if !entry.gateOpen {
		entry.gateOpen = true
		handleIRQFn(irqNum, func(frame *Frame, regs *Regs) {
			dispatchIRQ(irqNum, frame, regs)
		})
	}
	return nil
}

// UninstallIRQHandler removes the handler previously registered by deviceID
// on irqNum. The line's IDT gate stays open (harmless if no handlers remain:
// the shared dispatcher falls back to the left_pending counter).
func UninstallIRQHandler(irqNum IRQNum, deviceID uint32) *kernel.Error {
	entry := &irqTable[irqNum]
	for i := range entry.handlers {
		if entry.handlers[i].deviceID == deviceID {
			entry.handlers = append(entry.handlers[:i], entry.handlers[i+1:]...)
			return nil
		}
	}
	return errIRQHandlerNotFound
}

// IRQRaisedCount returns the number of times irqNum has fired since boot.
func IRQRaisedCount(irqNum IRQNum) uint64 {
	return irqTable[irqNum].raised
}

// IRQLeftPendingCount returns the number of times irqNum fired with no
// device handler installed to service it.
func IRQLeftPendingCount(irqNum IRQNum) uint64 {
	return irqTable[irqNum].leftPending
}

// dispatchIRQ is installed once per line (on first InstallIRQHandler call)
// and fans the interrupt out to every device sharing that line.
func dispatchIRQ(irqNum IRQNum, frame *Frame, regs *Regs) {
	entry := &irqTable[irqNum]
	entry.raised++

	if len(entry.handlers) == 0 {
		entry.leftPending++
		endOfInterruptFn(irqNum)
		return
	}

	for i := range entry.handlers {
		entry.handlers[i].handler(frame, regs)
		entry.handlers[i].handledCount++
	}
}
