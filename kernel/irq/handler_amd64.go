// Package irq installs the IDT and dispatches CPU exceptions and hardware
// interrupts to Go handlers.
package irq

// ExceptionNum identifies a CPU exception vector that can be passed to
// HandleException or HandleExceptionWithCode.
type ExceptionNum uint8

const (
	// DivideByZero occurs when dividing any number by 0 using DIV or IDIV.
	DivideByZero = ExceptionNum(0)

	// NMI is raised for non-maskable hardware failures.
	NMI = ExceptionNum(2)

	// Overflow occurs when an arithmetic overflow is detected.
	Overflow = ExceptionNum(4)

	// InvalidOpcode occurs when the CPU attempts to decode an undefined
	// instruction.
	InvalidOpcode = ExceptionNum(6)

	// DoubleFault occurs when an exception is unhandled or when an
	// exception occurs while the CPU is trying to call an exception
	// handler.
	DoubleFault = ExceptionNum(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = ExceptionNum(10)

	// SegmentNotPresent occurs when a present gate is invoked with an
	// invalid stack segment selector.
	SegmentNotPresent = ExceptionNum(11)

	// StackSegmentFault occurs on a non-canonical stack access or a
	// stack base/limit check failure.
	StackSegmentFault = ExceptionNum(12)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a PDT or PDT-entry is not present
	// or when a privilege and/or RW protection check fails.
	PageFaultException = ExceptionNum(14)
)

// IRQNum identifies a hardware interrupt request line, remapped past the
// CPU exception range (0-31) by the legacy PIC driver.
type IRQNum uint8

const (
	// TimerIRQ fires on every tick of the programmable interval timer.
	TimerIRQ = IRQNum(0)

	// KeyboardIRQ fires whenever the PS/2 controller has a scan code ready.
	KeyboardIRQ = IRQNum(1)
)

// ExceptionHandler handles an exception that does not push an error code to
// the stack. Modifications made to Frame/Regs are propagated back to the
// faulting context if the handler returns.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode handles an exception that pushes an error code to
// the stack.
type ExceptionHandlerWithCode func(uint64, *Frame, *Regs)

// IRQHandler handles a hardware interrupt request.
type IRQHandler func(*Frame, *Regs)

// Init installs the IDT. All gate entries start out non-present; handlers
// become active as they are registered via HandleException(WithCode) or
// HandleIRQ.
func Init() {
	installIDT()
}

// HandleException registers an exception handler (without an error code)
// for the given exception vector.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler)

// HandleExceptionWithCode registers an exception handler (with an error
// code) for the given exception vector.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode)

// HandleIRQ registers a handler for the given hardware interrupt line. The
// legacy PIC must have already remapped IRQ lines past vector 31 (see
// kernel/irq/pic) before a handler installed here will ever fire.
func HandleIRQ(irqNum IRQNum, handler IRQHandler)

// EndOfInterrupt must be called by IRQHandler implementations before
// returning so the PIC accepts further interrupts on the same line.
func EndOfInterrupt(irqNum IRQNum)

// installIDT populates the IDT descriptor and loads it into the CPU. All
// gate entries are initially marked as non-present and must be explicitly
// enabled via HandleException(WithCode)/HandleIRQ.
func installIDT()
