package irq

import (
	"io"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/kfmt"
)

// exceptionCount is the number of CPU exception vectors defined by the
// amd64 architecture.
const exceptionCount = 32

// exceptionNames gives the textual name of every architecturally-defined
// exception vector; vectors Intel has reserved for future use keep the
// zero-value "" and are rendered as "Reserved" by exceptionName.
var exceptionNames = [exceptionCount]string{
	0:  "Divide Error",
	1:  "Debug",
	2:  "NMI Interrupt",
	3:  "Breakpoint",
	4:  "Overflow",
	5:  "BOUND Range Exceeded",
	6:  "Invalid Opcode",
	7:  "Device Not Available",
	8:  "Double Fault",
	9:  "Coprocessor Segment Overrun",
	10: "Invalid TSS",
	11: "Segment Not Present",
	12: "Stack-Segment Fault",
	13: "General Protection Fault",
	14: "Page Fault",
	16: "x87 FPU Floating-Point Error",
	17: "Alignment Check",
	18: "Machine Check",
	19: "SIMD Floating-Point Exception",
	20: "Virtualization Exception",
	21: "Control Protection Exception",
	28: "Hypervisor Injection Exception",
	29: "VMM Communication Exception",
	30: "Security Exception",
}

// vectorsWithErrorCode lists the exception vectors for which the CPU pushes
// an error code onto the stack before invoking the handler.
var vectorsWithErrorCode = [exceptionCount]bool{
	8: true, 10: true, 11: true, 12: true, 13: true, 14: true, 17: true, 21: true, 29: true, 30: true,
}

func exceptionName(vector ExceptionNum) string {
	if name := exceptionNames[vector]; name != "" {
		return name
	}
	return "Reserved"
}

// exceptionTableEntry is one row of the exception table described in the
// interrupts component: a vector, its human name, a count of how many times
// it has fired and the optional recovery handler.
type exceptionTableEntry struct {
	vector    ExceptionNum
	name      string
	raised    uint64
	handler   ExceptionHandlerWithCode
	installed bool
}

var exceptionTable [exceptionCount]exceptionTableEntry

func init() {
	for v := range exceptionTable {
		exceptionTable[v].vector = ExceptionNum(v)
		exceptionTable[v].name = exceptionName(ExceptionNum(v))
	}
}

// PanicStream is where the panic path of the exception table writes its
// dump, if set. When nil the dump goes to kfmt's default output sink.
var PanicStream io.Writer

// SetPanicStream installs the stream used by the exception table's panic
// path to report unrecovered exceptions.
func SetPanicStream(w io.Writer) {
	PanicStream = w
}

var errExceptionHandlerInstalled = &kernel.Error{Module: "irq", Message: "an exception handler is already installed for this vector; re-installation is not supported"}

// InstallExceptionHandler registers handler as the recovery handler for
// vector in the exception table. Only one handler may ever be installed per
// exception vector (matching the kernel's "re-installation is not supported by
// design"); a second call for the same vector fails.
func InstallExceptionHandler(vector ExceptionNum, handler ExceptionHandlerWithCode) *kernel.Error {
	entry := &exceptionTable[vector]
	if entry.installed {
		return errExceptionHandlerInstalled
	}

	entry.handler = handler
	entry.installed = true

	if vectorsWithErrorCode[vector] {
		handleExceptionWithCodeFn(vector, func(errorCode uint64, frame *Frame, regs *Regs) {
			dispatchException(vector, errorCode, frame, regs)
		})
	} else {
		handleExceptionFn(vector, func(frame *Frame, regs *Regs) {
			dispatchException(vector, 0, frame, regs)
		})
	}
	return nil
}

// ExceptionRaisedCount returns the number of times vector has fired since
// boot, regardless of whether a handler was installed for it.
func ExceptionRaisedCount(vector ExceptionNum) uint64 {
	return exceptionTable[vector].raised
}

// the following are used by tests to mock the asm-backed gate installers
// and are automatically inlined by the compiler when compiling the kernel.
var (
	handleExceptionFn         = HandleException
	handleExceptionWithCodeFn = HandleExceptionWithCode
	panicFn                   = kernel.Panic
)

func dispatchException(vector ExceptionNum, errorCode uint64, frame *Frame, regs *Regs) {
	entry := &exceptionTable[vector]
	entry.raised++

	if entry.handler != nil {
		entry.handler(errorCode, frame, regs)
		return
	}

	enterPanicPath(vector, errorCode, frame, regs)
}

// enterPanicPath is taken for any exception that fires with no recovery
// handler installed: it dumps the CPU context to PanicStream (if any) and
// halts forever. When PanicStream is set it becomes kfmt's output sink, so
// the register and frame dumps land there too.
func enterPanicPath(vector ExceptionNum, errorCode uint64, frame *Frame, regs *Regs) {
	entry := &exceptionTable[vector]

	if PanicStream != nil {
		kfmt.SetOutputSink(PanicStream)
	}
	kfmt.Printf("\nunhandled exception %d (%s), error code %d\n", vector, entry.name, errorCode)
	regs.Print()
	frame.Print()

	panicFn(&kernel.Error{Module: "irq", Message: entry.name})
}
