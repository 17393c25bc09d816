package syscall

import (
	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/vmm"
)

// pageProtectionRead and pageProtectionWrite are the page_protection bit
// meanings callers pass to memoryAllocatePage: bit 0 read, bit 1 write.
// Read-only memory is always mapped without PageFlag write rights.
const (
	pageProtectionRead  = 1 << 0
	pageProtectionWrite = 1 << 1
)

func memoryGetPageSize(ctx *Context, a1, a2, a3, a4, a5, a6 uint64) int64 {
	return int64(mem.PageSize)
}

// memoryAllocatePage maps numPages fresh, zeroed pages into the calling
// app's address space at vAddr, or — if vAddr is zero — at the current end
// of its heap, then returns the address the pages were actually mapped at.
// An explicit vAddr must already fall below the user/kernel boundary. Gaps
// inside an already-partially-freed heap are not reused; pages are always
// appended past HeapLimit.
func memoryAllocatePage(ctx *Context, a1, vAddr, numPages, pageProtection, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	if pageProtection > pageProtectionRead+pageProtectionWrite {
		return int64(StatusBadArg)
	}
	if numPages == 0 {
		return int64(StatusBadArg)
	}

	var addr uintptr
	if vAddr == 0 {
		limit, err := p.GrowHeap(mem.Size(numPages) * mem.PageSize)
		if err != nil {
			return int64(StatusFault)
		}
		addr = limit - uintptr(numPages)*uintptr(mem.PageSize)
	} else {
		addr = uintptr(vAddr) &^ (uintptr(mem.PageSize) - 1)
		if !VerifyUserBuffer(addr, uintptr(numPages)*uintptr(mem.PageSize)) {
			return int64(StatusBadArg)
		}
		flags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagUserAccessible | vmm.FlagNoExecute
		if err := p.AddressSpace().Allocate(vmm.PageFromAddress(addr), flags, int(numPages)); err != nil {
			return int64(StatusFault)
		}
		p.TrackRegion(addr, int(numPages))
	}

	if pageProtection&pageProtectionWrite == 0 {
		page := vmm.PageFromAddress(addr)
		for i := uint64(0); i < numPages; i++ {
			if err := p.AddressSpace().ModifyPageFlags(page, vmm.FlagRW, false); err != nil {
				return int64(StatusFault)
			}
			page++
		}
	}

	return int64(addr)
}

// memoryFreePage unmaps numPages pages starting at vAddr from the calling
// app's address space. vAddr/numPages must match exactly one region the app
// has tracked (an explicit-address allocation or a single GrowHeap step);
// freeing only part of a region is rejected.
func memoryFreePage(ctx *Context, a1, vAddr, numPages, a4, a5, a6 uint64) int64 {
	p := runningProcess(ctx)
	if p == nil {
		return int64(StatusFault)
	}
	addr := uintptr(vAddr) &^ (uintptr(mem.PageSize) - 1)
	if !VerifyUserBuffer(addr, uintptr(numPages)*uintptr(mem.PageSize)) {
		return int64(StatusBadArg)
	}
	if !p.UntrackRegion(addr, int(numPages)) {
		return int64(StatusBadArg)
	}
	if err := p.AddressSpace().Free(vmm.PageFromAddress(addr), int(numPages)); err != nil {
		return int64(StatusFault)
	}
	return int64(StatusOkay)
}
