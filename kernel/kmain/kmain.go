package kmain

import (
	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/app"
	"github.com/Ewogijk/runeOS-sub002/kernel/cpu"
	"github.com/Ewogijk/runeOS-sub002/kernel/device/e9"
	"github.com/Ewogijk/runeOS-sub002/kernel/device/ps2"
	"github.com/Ewogijk/runeOS-sub002/kernel/device/serial"
	"github.com/Ewogijk/runeOS-sub002/kernel/goruntime"
	"github.com/Ewogijk/runeOS-sub002/kernel/hal"
	"github.com/Ewogijk/runeOS-sub002/kernel/heap"
	"github.com/Ewogijk/runeOS-sub002/kernel/irq"
	"github.com/Ewogijk/runeOS-sub002/kernel/irq/pic"
	"github.com/Ewogijk/runeOS-sub002/kernel/log"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/pmm/allocator"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/vmm"
	"github.com/Ewogijk/runeOS-sub002/kernel/sched"
	"github.com/Ewogijk/runeOS-sub002/kernel/sync"
	"github.com/Ewogijk/runeOS-sub002/kernel/syscall"
	"github.com/Ewogijk/runeOS-sub002/kernel/timer"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

const (
	timerFrequencyHz  = 100
	timerQuantumNanos = 10_000_000
	serialBaudRate    = 115200
)

var logger = log.New("kmain")

// idleThread is the thread sched.Init hands control to before any interrupt
// can fire; it never leaves Running and its body is the halt loop at the end
// of Kmain.
var idleThread = &sched.Thread{ID: 0, Name: "idle", Priority: sched.Low}

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// Unlike the multiboot2 boot path, the Limine protocol does not hand the
// kernel a single info pointer: the bootloader fills in the package-level
// request structs placed in the .requests link section before jumping to
// this function, so kernel/hal/limine's accessors are already usable on
// entry. The rt0 code still passes the kernel's own physical load range.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(kernelStart, kernelEnd uintptr) {
	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	serial.Init(serialBaudRate)
	logger.AddSink(hal.ActiveTerminal, log.Info)
	logger.AddSink(serial.COM1, log.Trace)
	logger.AddSink(e9.Default, log.Trace)
	irq.SetPanicStream(serial.COM1)

	irq.Init()

	var err *kernel.Error
	if err = allocator.Init(kernelStart, kernelEnd); err != nil {
		panic(err)
	} else if err = vmm.Init(); err != nil {
		panic(err)
	} else if err = goruntime.Init(); err != nil {
		panic(err)
	}

	pic.Init()

	if err = heap.Init(allocator.AllocFrame); err != nil {
		panic(err)
	}

	sched.Init(idleThread)
	sync.SetYieldFn(sched.ExecuteNextThread)

	if err = timer.Start(timerFrequencyHz, timerQuantumNanos); err != nil {
		panic(err)
	}
	if err = ps2.Start(); err != nil {
		logger.Warn("ps2 keyboard unavailable: %s", err.Message)
	}

	// No PCI bus enumeration exists anywhere in this kernel, so there is no
	// way to discover an AHCI controller's ABAR and mount a root volume.
	// Apps and the system call gate still stand up against an empty mount
	// table, ready to serve a volume mounted later by whatever eventually
	// supplies one.
	mounts := &vfs.MountTable{}
	apps := app.NewTable(mounts, hal.ActiveTerminal)
	syscall.Install(syscall.NewContext(apps, mounts))

	logger.Info("boot complete")
	cpu.EnableInterrupts()
	for {
		cpu.Halt()
	}
}
