package vmm

import (
	"unsafe"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/pmm"
)

var (
	// earlyReserveLastUsed tracks the last reserved page address and is
	// decreased after each allocation request. It initially points to
	// tempMappingAddr, which coincides with the end of the kernel address
	// space.
	earlyReserveLastUsed = tempMappingAddr

	// earlyReserveRegionFn is used by tests and is automatically inlined
	// by the compiler.
	earlyReserveRegionFn = EarlyReserveRegion

	errEarlyReserveNoSpace = &kernel.Error{Module: "vmm", Message: "remaining virtual address space not large enough to satisfy reservation request"}
)

// EarlyReserveRegion reserves a page-aligned contiguous virtual memory region
// with the requested size in the kernel address space and returns its
// virtual address. If size is not a multiple of mem.PageSize it is rounded
// up.
//
// This function allocates regions starting at the end of the kernel address
// space and should only be used during the early stages of kernel
// initialization, before per-process address spaces exist.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	size = (size + (mem.PageSize - 1)) &^ (mem.PageSize - 1)

	// Reserving a region of the requested size would underflow.
	if uintptr(size) > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveLastUsed -= uintptr(size)
	return earlyReserveLastUsed, nil
}

// LookupResult describes the outcome of an AddressSpace.FindPage query.
type LookupResult uint8

const (
	// Okay indicates the page is mapped and accessible.
	Okay LookupResult = iota

	// PageTableEntryMissing indicates the page (or one of the
	// intermediate tables leading to it) is not present.
	PageTableEntryMissing

	// NotUserAccessible indicates the page is mapped but the
	// FlagUserAccessible bit is not set.
	NotUserAccessible
)

// AddressSpace wraps a PageDirectoryTable and represents the complete
// virtual memory layout visible to one thread of execution. The kernel
// address space and every application's address space are each one
// AddressSpace value; a thread holds a back-reference to the one it runs in.
type AddressSpace struct {
	pdt PageDirectoryTable
}

// NewAddressSpace initializes a fresh AddressSpace backed by pdtFrame. If
// pdtFrame is not the currently active PDT, its contents are cleared and a
// recursive self-mapping is installed, the same bootstrapping performed by
// PageDirectoryTable.Init.
func NewAddressSpace(pdtFrame pmm.Frame) (AddressSpace, *kernel.Error) {
	var as AddressSpace
	if err := as.pdt.Init(pdtFrame); err != nil {
		return AddressSpace{}, err
	}
	return as, nil
}

// CurrentAddressSpace returns the AddressSpace backed by the currently
// active root page table — callers that need to restore the caller's
// mapping after temporarily activating another AddressSpace (kernel/elf's
// loader) capture it with this before switching away.
func CurrentAddressSpace() AddressSpace {
	return AddressSpace{pdt: PageDirectoryTable{pdtFrame: pmm.Frame(activePDTFn() >> mem.PageShift)}}
}

// Map establishes a page -> frame mapping in this address space.
func (as AddressSpace) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return as.pdt.Map(page, frame, flags)
}

// Unmap removes a mapping previously installed by Map.
func (as AddressSpace) Unmap(page Page) *kernel.Error {
	return as.pdt.Unmap(page)
}

// Activate switches the MMU root page table to this address space.
func (as AddressSpace) Activate() {
	as.pdt.Activate()
}

// PageDirectoryFrame returns the physical frame backing this address space's
// root page table.
func (as AddressSpace) PageDirectoryFrame() pmm.Frame {
	return as.pdt.Frame()
}

// FindPage reports whether page is mapped in this address space and, if so,
// whether it carries the FlagUserAccessible bit. Looking up a page in an
// address space other than the currently active one briefly swaps it into
// the recursive mapping slot, mirroring PageDirectoryTable.Map/Unmap.
func (as AddressSpace) FindPage(page Page) LookupResult {
	result := PageTableEntryMissing
	as.withThisActive(func() {
		walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
			if !pte.HasFlags(FlagPresent) {
				return false
			}
			if pteLevel == pageLevels-1 {
				if pte.HasFlags(FlagUserAccessible) {
					result = Okay
				} else {
					result = NotUserAccessible
				}
			}
			return true
		})
	})
	return result
}

// Allocate maps n consecutive pages starting at vaddr with the given flags,
// obtaining one fresh physical frame per page from the registered frame
// allocator. It is the AddressSpace half of the VMM's public
// allocate(vaddr, flags, n) contract. If a frame allocation or mapping fails partway
// through, the pages already mapped by this call are left in place; freeing
// them is the caller's responsibility via Free.
func (as AddressSpace) Allocate(vaddr Page, flags PageTableEntryFlag, n int) *kernel.Error {
	page := vaddr
	for i := 0; i < n; i++ {
		frame, err := frameAllocator()
		if err != nil {
			return err
		}
		if err := as.Map(page, frame, flags); err != nil {
			return err
		}
		page++
	}
	return nil
}

// Free unmaps n consecutive pages starting at vaddr and returns their
// backing physical frames to the registered frame deallocator, implementing
// the VMM's free(vaddr, n) contract.
func (as AddressSpace) Free(vaddr Page, n int) *kernel.Error {
	page := vaddr
	for i := 0; i < n; i++ {
		if frame, err := as.frameForPage(page); err == nil && frameDeallocator != nil {
			_ = frameDeallocator(frame)
		}

		if err := as.Unmap(page); err != nil {
			return err
		}
		page++
	}
	return nil
}

// ModifyPageFlags toggles a single page table entry flag on an already
// mapped page, implementing the VMM's modify_page_flags(vaddr, flag, on) contract.
// It fails with ErrInvalidMapping if the page is not currently mapped.
func (as AddressSpace) ModifyPageFlags(vaddr Page, flag PageTableEntryFlag, on bool) *kernel.Error {
	err := ErrInvalidMapping
	as.withThisActive(func() {
		walk(vaddr.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
			if !pte.HasFlags(FlagPresent) {
				return false
			}
			if pteLevel == pageLevels-1 {
				if on {
					pte.SetFlags(flag)
				} else {
					pte.ClearFlags(flag)
				}
				flushTLBEntryFn(vaddr.Address())
				err = nil
			}
			return true
		})
	})
	return err
}

// frameForPage returns the physical frame currently mapped at page, or
// ErrInvalidMapping if page is not mapped.
func (as AddressSpace) frameForPage(page Page) (pmm.Frame, *kernel.Error) {
	var (
		frame pmm.Frame
		err   = ErrInvalidMapping
	)
	as.withThisActive(func() {
		walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
			if !pte.HasFlags(FlagPresent) {
				return false
			}
			if pteLevel == pageLevels-1 {
				frame = pte.Frame()
				err = nil
			}
			return true
		})
	})
	return frame, err
}

// withThisActive temporarily swaps this address space's root table into the
// active PDT's recursive self-mapping slot, if it is not already the active
// one, runs fn, and restores the previous mapping afterward. This is the
// same swap-in-last-entry trick PageDirectoryTable.Map/Unmap use to reach an
// inactive PDT without a full CR3 switch.
func (as AddressSpace) withThisActive(fn func()) {
	activePdtFrame := pmm.Frame(activePDTFn() >> mem.PageShift)

	swapped := activePdtFrame != as.pdt.pdtFrame
	var (
		lastPdtEntryAddr uintptr
		lastPdtEntry     *pageTableEntry
	)
	if swapped {
		lastPdtEntryAddr = activePdtFrame.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
		lastPdtEntry = (*pageTableEntry)(unsafe.Pointer(lastPdtEntryAddr))
		lastPdtEntry.SetFrame(as.pdt.pdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	fn()

	if swapped {
		lastPdtEntry.SetFrame(activePdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}
}
