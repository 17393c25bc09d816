package vmm

import (
	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/cpu"
	"github.com/Ewogijk/runeOS-sub002/kernel/irq"
	"github.com/Ewogijk/runeOS-sub002/kernel/kfmt"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/pmm"
)

var (
	// frameAllocator points to a frame allocator function registered via
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// frameDeallocator points to a frame deallocator function registered via
	// SetFrameDeallocator. It may be nil (e.g. in early boot code that only
	// ever grows its mappings); AddressSpace.Free tolerates that.
	frameDeallocator FrameDeallocatorFn

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler when compiling the kernel.
	panicFn                   = kernel.Panic
	installExceptionHandlerFn = irq.InstallExceptionHandler
	readCR2Fn                 = cpu.ReadCR2
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// FrameDeallocatorFn is a function that can return a physical frame to the
// allocator it came from.
type FrameDeallocatorFn func(pmm.Frame) *kernel.Error

// SetFrameAllocator registers a frame allocator function that will be used
// by the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

// SetFrameDeallocator registers a frame deallocator function that
// AddressSpace.Free uses to release frames it unmaps.
func SetFrameDeallocator(deallocFn FrameDeallocatorFn) {
	frameDeallocator = deallocFn
}

func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	var (
		faultAddress = uintptr(readCR2Fn())
		faultPage    = PageFromAddress(faultAddress)
		pageEntry    *pageTableEntry
	)

	// Look up the entry for the page where the fault occurred.
	walk(faultPage.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		nextIsPresent := pte.HasFlags(FlagPresent)

		if pteLevel == pageLevels-1 && nextIsPresent {
			pageEntry = pte
		}

		// Abort the walk if the next page table entry is missing.
		return nextIsPresent
	})

	// CoW is supported for RO pages that carry the CoW flag.
	if pageEntry != nil && !pageEntry.HasFlags(FlagRW) && pageEntry.HasFlags(FlagCopyOnWrite) {
		var (
			copyFrame pmm.Frame
			tmpPage   Page
			err       *kernel.Error
		)

		if copyFrame, err = frameAllocator(); err != nil {
			nonRecoverablePageFault(faultAddress, errorCode, frame, regs, err)
		} else if tmpPage, err = mapTemporaryFn(copyFrame); err != nil {
			nonRecoverablePageFault(faultAddress, errorCode, frame, regs, err)
		} else {
			// Copy the page contents, mark it RW and clear the CoW flag.
			mem.Memcopy(faultPage.Address(), tmpPage.Address(), mem.PageSize)
			unmapFn(tmpPage)

			pageEntry.ClearFlags(FlagCopyOnWrite)
			pageEntry.SetFlags(FlagPresent | FlagRW)
			pageEntry.SetFrame(copyFrame)
			flushTLBEntryFn(faultPage.Address())

			// Fault recovered; retry the faulting instruction.
			return
		}
	}

	nonRecoverablePageFault(faultAddress, errorCode, frame, regs, errUnrecoverableFault)
}

var errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page fault could not be recovered"}

func nonRecoverablePageFault(faultAddress uintptr, errorCode uint64, frame *irq.Frame, regs *irq.Regs, err *kernel.Error) {
	kfmt.Printf("\nPage fault while accessing address: 0x%16x\nReason: ", faultAddress)
	switch {
	case errorCode == 0:
		kfmt.Printf("read from non-present page")
	case errorCode == 1:
		kfmt.Printf("page protection violation (read)")
	case errorCode == 2:
		kfmt.Printf("write to non-present page")
	case errorCode == 3:
		kfmt.Printf("page protection violation (write)")
	case errorCode == 4:
		kfmt.Printf("page-fault in user-mode")
	case errorCode == 8:
		kfmt.Printf("page table has reserved bit set")
	case errorCode == 16:
		kfmt.Printf("instruction fetch")
	default:
		kfmt.Printf("unknown")
	}

	kfmt.Printf("\n\nRegisters:\n")
	regs.Print()
	frame.Print()

	// TODO: revisit once user-mode threads can be terminated individually
	// instead of halting the whole system.
	panicFn(err)
}

func generalProtectionFaultHandler(_ uint64, frame *irq.Frame, regs *irq.Regs) {
	kfmt.Printf("\nGeneral protection fault while accessing address: 0x%x\n", readCR2Fn())
	kfmt.Printf("Registers:\n")
	regs.Print()
	frame.Print()

	panicFn(errUnrecoverableFault)
}

// reserveZeroedFrame reserves a physical frame to be used together with
// FlagCopyOnWrite for lazy allocation requests.
func reserveZeroedFrame() *kernel.Error {
	var (
		err      *kernel.Error
		tempPage Page
	)

	if ReservedZeroedFrame, err = frameAllocator(); err != nil {
		return err
	} else if tempPage, err = mapTemporaryFn(ReservedZeroedFrame); err != nil {
		return err
	}
	mem.Memset(tempPage.Address(), 0, mem.PageSize)
	unmapFn(tempPage)

	// From this point on, ReservedZeroedFrame cannot be mapped with a RW flag.
	protectReservedZeroedPage = true
	return nil
}

// Init initializes the vmm system and installs the paging-related exception
// handlers. It must be called once, after the physical frame allocator is
// up, while the bootloader-provided page tables are still active.
func Init() *kernel.Error {
	if err := reserveZeroedFrame(); err != nil {
		return err
	}

	if err := installExceptionHandlerFn(irq.PageFaultException, pageFaultHandler); err != nil {
		return err
	}
	if err := installExceptionHandlerFn(irq.GPFException, generalProtectionFaultHandler); err != nil {
		return err
	}
	return nil
}
