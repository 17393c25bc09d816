package vmm

import (
	"unsafe"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/cpu"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/pmm"
)

// ReservedZeroedFrame is a special zero-cleared frame allocated by Init. The
// purpose of this frame is to assist in implementing on-demand memory
// allocation when mapping it in conjunction with the CopyOnWrite flag:
//
//	mapFlags := vmm.FlagPresent|vmm.FlagCopyOnWrite
//	if err := vmm.Map(page, vmm.ReservedZeroedFrame, mapFlags); err != nil {
//	    return err
//	}
//
// A write to such a page triggers a page fault which allocates a fresh frame,
// copies the blank frame contents into it and installs it in-place with RW
// permissions.
var ReservedZeroedFrame pmm.Frame

var (
	// protectReservedZeroedPage is set to true once ReservedZeroedFrame has
	// been reserved, preventing callers from mapping it with RW permissions.
	protectReservedZeroedPage bool

	// nextAddrFn is used by tests to override the nextTableAddr calculation
	// used by Map. When compiling the kernel this function is automatically
	// inlined.
	nextAddrFn = func(entryAddr uintptr) uintptr {
		return entryAddr
	}

	// flushTLBEntryFn is used by tests to override calls to cpu.FlushTLBEntry
	// which would otherwise fault when called outside of ring 0.
	flushTLBEntryFn = cpu.FlushTLBEntry

	errNoHugePageSupport           = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errAttemptToRWMapReservedFrame = &kernel.Error{Module: "vmm", Message: "reserved blank frame cannot be mapped with a RW flag"}
)

// Map establishes a mapping between a virtual page and a physical memory
// frame using the currently active page directory table. Map uses the frame
// allocator registered with SetFrameAllocator to initialize any missing
// intermediate page tables.
//
// Attempts to map ReservedZeroedFrame with a RW flag result in an error.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	if protectReservedZeroedPage && frame == ReservedZeroedFrame && (flags&FlagRW) != 0 {
		return errAttemptToRWMapReservedFrame
	}

	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is map the
		// frame in place, flag it and flush its TLB entry.
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Next table does not yet exist; allocate a physical frame
		// for it, map it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			var newTableFrame pmm.Frame
			newTableFrame, err = frameAllocator()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			// The next pte entry becomes available but we need to
			// make sure that the new page is properly cleared.
			nextTableAddr := uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1]
			mem.Memset(nextAddrFn(nextTableAddr), 0, mem.PageSize)
		}

		return true
	})

	return err
}

// MapRegion establishes a mapping to the physical memory region which starts
// at the given frame and ends at frame + pages(size). The size argument is
// always rounded up to the nearest page boundary. MapRegion reserves the next
// available region in the active address space, establishes the mapping and
// returns the Page that corresponds to the region start.
func MapRegion(frame pmm.Frame, size mem.Size, flags PageTableEntryFlag) (Page, *kernel.Error) {
	size = (size + (mem.PageSize - 1)) &^ (mem.PageSize - 1)
	startPage, err := earlyReserveRegionFn(size)
	if err != nil {
		return 0, err
	}

	pageCount := size >> mem.PageShift
	for page := PageFromAddress(startPage); pageCount > 0; pageCount, page, frame = pageCount-1, page+1, frame+1 {
		if err := mapFn(page, frame, flags); err != nil {
			return 0, err
		}
	}

	return PageFromAddress(startPage), nil
}

// MapTemporary establishes a temporary RW mapping of a physical memory frame
// to a fixed virtual address, overwriting any previous mapping. It is used by
// the kernel to access and initialize inactive page tables.
//
// Attempts to map ReservedZeroedFrame result in an error.
func MapTemporary(frame pmm.Frame) (Page, *kernel.Error) {
	if protectReservedZeroedPage && frame == ReservedZeroedFrame {
		return 0, errAttemptToRWMapReservedFrame
	}

	if err := Map(PageFromAddress(tempMappingAddr), frame, FlagPresent|FlagRW); err != nil {
		return 0, err
	}

	return PageFromAddress(tempMappingAddr), nil
}

// Unmap removes a mapping previously installed via Map, MapRegion or MapTemporary.
func Unmap(page Page) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			flushTLBEntryFn(page.Address())
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	return err
}
