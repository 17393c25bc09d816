package vmm

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/pmm"
)

func TestEarlyReserveRegion(t *testing.T) {
	defer func() {
		earlyReserveLastUsed = tempMappingAddr
	}()

	earlyReserveLastUsed = tempMappingAddr

	addr, err := EarlyReserveRegion(mem.Size(1))
	if err != nil {
		t.Fatal(err)
	}
	if exp := tempMappingAddr - uintptr(mem.PageSize); addr != exp {
		t.Fatalf("expected reserved region to start at 0x%x; got 0x%x", exp, addr)
	}

	earlyReserveLastUsed = uintptr(mem.PageSize) - 1
	if _, err := EarlyReserveRegion(mem.Size(2 * mem.PageSize)); err != errEarlyReserveNoSpace {
		t.Fatalf("expected errEarlyReserveNoSpace; got %v", err)
	}
}

func TestAddressSpaceFindPageNoSwap(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origActivePDT func() uintptr, origPtePtr func(uintptr) unsafe.Pointer) {
		activePDTFn = origActivePDT
		ptePtrFn = origPtePtr
	}(activePDTFn, ptePtrFn)

	pdtFrame := pmm.Frame(123)
	as := AddressSpace{pdt: PageDirectoryTable{pdtFrame: pdtFrame}}

	activePDTFn = func() uintptr {
		return pdtFrame.Address()
	}

	specs := []struct {
		flags  PageTableEntryFlag
		expect LookupResult
	}{
		{0, PageTableEntryMissing},
		{FlagPresent, NotUserAccessible},
		{FlagPresent | FlagUserAccessible, Okay},
	}

	for specIndex, spec := range specs {
		var pte pageTableEntry
		pte.SetFlags(spec.flags)

		ptePtrFn = func(entry uintptr) unsafe.Pointer {
			return unsafe.Pointer(&pte)
		}

		if got := as.FindPage(PageFromAddress(0)); got != spec.expect {
			t.Errorf("[spec %d] expected %v; got %v", specIndex, spec.expect, got)
		}
	}
}

func TestAddressSpaceFindPageWithSwap(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origActivePDT func() uintptr, origPtePtr func(uintptr) unsafe.Pointer, origFlush func(uintptr)) {
		activePDTFn = origActivePDT
		ptePtrFn = origPtePtr
		flushTLBEntryFn = origFlush
	}(activePDTFn, ptePtrFn, flushTLBEntryFn)

	var (
		activePhysPage [mem.PageSize >> mem.PointerShift]pageTableEntry
		activePdtFrame = pmm.Frame(uintptr(unsafe.Pointer(&activePhysPage[0])) >> mem.PageShift)
		otherPdtFrame  = pmm.Frame(123)
		as             = AddressSpace{pdt: PageDirectoryTable{pdtFrame: otherPdtFrame}}
	)

	activePhysPage[len(activePhysPage)-1].SetFlags(FlagPresent | FlagRW)
	activePhysPage[len(activePhysPage)-1].SetFrame(activePdtFrame)

	activePDTFn = func() uintptr {
		return activePdtFrame.Address()
	}

	var leafPte pageTableEntry
	leafPte.SetFlags(FlagPresent | FlagUserAccessible)
	ptePtrFn = func(entry uintptr) unsafe.Pointer {
		return unsafe.Pointer(&leafPte)
	}

	flushCallCount := 0
	flushTLBEntryFn = func(_ uintptr) {
		switch flushCallCount {
		case 0:
			if got := activePhysPage[len(activePhysPage)-1].Frame(); got != otherPdtFrame {
				t.Fatalf("expected last PDT entry to be swapped to frame %x; got %x", otherPdtFrame, got)
			}
		case 1:
			if got := activePhysPage[len(activePhysPage)-1].Frame(); got != activePdtFrame {
				t.Fatalf("expected last PDT entry to be restored to frame %x; got %x", activePdtFrame, got)
			}
		}
		flushCallCount++
	}

	if got := as.FindPage(PageFromAddress(0)); got != Okay {
		t.Fatalf("expected Okay; got %v", got)
	}

	if exp := 2; flushCallCount != exp {
		t.Fatalf("expected flushTLBEntry to be called %d times; got %d", exp, flushCallCount)
	}
}

func TestAddressSpaceAllocateAndFree(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origActivePDT func() uintptr, origPtePtr func(uintptr) unsafe.Pointer, origMap func(Page, pmm.Frame, PageTableEntryFlag) *kernel.Error, origUnmap func(Page) *kernel.Error, origAlloc FrameAllocatorFn, origDealloc FrameDeallocatorFn) {
		activePDTFn = origActivePDT
		ptePtrFn = origPtePtr
		mapFn = origMap
		unmapFn = origUnmap
		frameAllocator = origAlloc
		frameDeallocator = origDealloc
	}(activePDTFn, ptePtrFn, mapFn, unmapFn, frameAllocator, frameDeallocator)

	pdtFrame := pmm.Frame(123)
	as := AddressSpace{pdt: PageDirectoryTable{pdtFrame: pdtFrame}}
	activePDTFn = func() uintptr { return pdtFrame.Address() }

	var nextFrame pmm.Frame = 10
	frameAllocator = func() (pmm.Frame, *kernel.Error) {
		f := nextFrame
		nextFrame++
		return f, nil
	}

	mappedCount := 0
	mapFn = func(_ Page, _ pmm.Frame, _ PageTableEntryFlag) *kernel.Error {
		mappedCount++
		return nil
	}

	if err := as.Allocate(PageFromAddress(0), FlagPresent|FlagRW, 3); err != nil {
		t.Fatal(err)
	}
	if mappedCount != 3 {
		t.Fatalf("expected 3 pages to be mapped; mapped %d", mappedCount)
	}

	var pte pageTableEntry
	pte.SetFlags(FlagPresent | FlagRW)
	pte.SetFrame(pmm.Frame(10))
	ptePtrFn = func(entry uintptr) unsafe.Pointer { return unsafe.Pointer(&pte) }

	var freedFrame pmm.Frame
	frameDeallocator = func(f pmm.Frame) *kernel.Error {
		freedFrame = f
		return nil
	}

	unmapCount := 0
	unmapFn = func(_ Page) *kernel.Error {
		unmapCount++
		return nil
	}

	if err := as.Free(PageFromAddress(0), 1); err != nil {
		t.Fatal(err)
	}
	if freedFrame != pmm.Frame(10) {
		t.Fatalf("expected frame 10 to be returned to the deallocator; got %d", freedFrame)
	}
	if unmapCount != 1 {
		t.Fatalf("expected 1 page to be unmapped; unmapped %d", unmapCount)
	}
}

func TestAddressSpaceModifyPageFlags(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origActivePDT func() uintptr, origPtePtr func(uintptr) unsafe.Pointer, origFlush func(uintptr)) {
		activePDTFn = origActivePDT
		ptePtrFn = origPtePtr
		flushTLBEntryFn = origFlush
	}(activePDTFn, ptePtrFn, flushTLBEntryFn)

	pdtFrame := pmm.Frame(123)
	as := AddressSpace{pdt: PageDirectoryTable{pdtFrame: pdtFrame}}
	activePDTFn = func() uintptr { return pdtFrame.Address() }
	flushTLBEntryFn = func(_ uintptr) {}

	var pte pageTableEntry
	pte.SetFlags(FlagPresent)
	ptePtrFn = func(entry uintptr) unsafe.Pointer { return unsafe.Pointer(&pte) }

	if err := as.ModifyPageFlags(PageFromAddress(0), FlagUserAccessible, true); err != nil {
		t.Fatal(err)
	}
	if !pte.HasFlags(FlagUserAccessible) {
		t.Fatal("expected FlagUserAccessible to be set")
	}

	if err := as.ModifyPageFlags(PageFromAddress(0), FlagUserAccessible, false); err != nil {
		t.Fatal(err)
	}
	if pte.HasFlags(FlagUserAccessible) {
		t.Fatal("expected FlagUserAccessible to be cleared")
	}

	pte.ClearFlags(FlagPresent)
	if err := as.ModifyPageFlags(PageFromAddress(0), FlagUserAccessible, true); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping for an unmapped page; got %v", err)
	}
}

func TestNewAddressSpace(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origFlush func(uintptr), origActivePDT func() uintptr, origMapTemporary func(pmm.Frame) (Page, *kernel.Error), origUnmap func(Page) *kernel.Error) {
		flushTLBEntryFn = origFlush
		activePDTFn = origActivePDT
		mapTemporaryFn = origMapTemporary
		unmapFn = origUnmap
	}(flushTLBEntryFn, activePDTFn, mapTemporaryFn, unmapFn)

	pdtFrame := pmm.Frame(123)
	activePDTFn = func() uintptr {
		return pdtFrame.Address()
	}

	as, err := NewAddressSpace(pdtFrame)
	if err != nil {
		t.Fatal(err)
	}

	if as.PageDirectoryFrame() != pdtFrame {
		t.Fatalf("expected address space to wrap frame %x; got %x", pdtFrame, as.PageDirectoryFrame())
	}
}
