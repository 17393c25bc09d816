package syscall

import "github.com/Ewogijk/runeOS-sub002/kernel/irq"

// Vector is the software interrupt number user mode executes INT against
// to enter the kernel. It sits past the remapped hardware IRQ range so it
// can never collide with a PIC line.
const Vector = irq.ExceptionNum(0x80)

// gateCtx is installed once by Install and read by the trap handler; it is
// package state rather than a HandleException closure argument because
// irq.ExceptionHandler's signature is fixed by the IDT gate ABI.
var gateCtx *Context

// Install wires ctx into the software interrupt vector user mode traps
// through to reach the system call gate. It must run after irq.Init.
func Install(ctx *Context) {
	gateCtx = ctx
	irq.HandleException(Vector, handleTrap)
}

// handleTrap is the IDT entry point for Vector: RAX carries the system
// call ID, RDI/RSI/RDX/R10/R8/R9 carry its six arguments (the SysV ABI's
// argument registers minus RCX, which INT clobbers), and the handler's
// signed result is written back into RAX for the trapping code to read
// once it resumes.
func handleTrap(frame *irq.Frame, regs *irq.Regs) {
	result := Dispatch(gateCtx, uint16(regs.RAX), regs.RDI, regs.RSI, regs.RDX, regs.R10, regs.R8, regs.R9)
	regs.RAX = uint64(result)
}
