// Package limine converts a Limine-compatible bootloader's handoff
// structures (memory map, framebuffer, higher-half direct map offset,
// kernel load addresses) into the kernel's own types, the same shape
// kernel/hal/multiboot used for multiboot2: walk a bootloader-owned list
// once at boot, copy what is needed into kernel-owned structures, and
// never touch bootloader memory again afterwards.
package limine

import "unsafe"

// commonMagic is the fixed magic pair that starts every Limine request
// struct, per the Limine boot protocol.
var commonMagic = [2]uint64{0xc7b1dd30df4c8b88, 0x0a82e883a194f07b}

// MemoryEntryType classifies a Limine memory map entry.
type MemoryEntryType uint64

const (
	MemUsable MemoryEntryType = iota
	MemReserved
	MemACPIReclaimable
	MemACPINVS
	MemBadMemory
	MemBootloaderReclaimable
	MemKernelAndModules
	MemFramebuffer
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemUsable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemACPIReclaimable:
		return "ACPI (reclaimable)"
	case MemACPINVS:
		return "NVS"
	case MemBadMemory:
		return "bad memory"
	case MemBootloaderReclaimable:
		return "bootloader (reclaimable)"
	case MemKernelAndModules:
		return "kernel/modules"
	case MemFramebuffer:
		return "framebuffer"
	default:
		return "unknown"
	}
}

// memmapEntry mirrors struct limine_memmap_entry.
type memmapEntry struct {
	Base, Length uint64
	Type         MemoryEntryType
}

// memmapRequest mirrors struct limine_memmap_request. id identifies the
// memmap feature; revision is the request revision the kernel speaks.
type memmapRequest struct {
	id       [4]uint64
	revision uint64
	response *memmapResponse
}

type memmapResponse struct {
	revision   uint64
	entryCount uint64
	entries    **memmapEntry
}

// hhdmRequest mirrors struct limine_hhdm_request.
type hhdmRequest struct {
	id       [4]uint64
	revision uint64
	response *hhdmResponse
}

type hhdmResponse struct {
	revision uint64
	offset   uint64
}

// kernelAddressRequest mirrors struct limine_kernel_address_request.
type kernelAddressRequest struct {
	id       [4]uint64
	revision uint64
	response *kernelAddressResponse
}

type kernelAddressResponse struct {
	revision      uint64
	physicalBase  uint64
	virtualBase   uint64
}

// framebufferRequest mirrors struct limine_framebuffer_request.
type framebufferRequest struct {
	id       [4]uint64
	revision uint64
	response *framebufferResponse
}

type framebufferResponse struct {
	revision        uint64
	framebufferCount uint64
	framebuffers    **framebuffer
}

type framebuffer struct {
	address       uintptr
	width, height uint64
	pitch         uint64
	bpp           uint16
	memoryModel   uint8
	redMaskSize   uint8
	redMaskShift  uint8
	greenMaskSize uint8
	greenMaskShift uint8
	blueMaskSize  uint8
	blueMaskShift uint8
}

// Requests are placed in the .requests ELF section by the linker script;
// the bootloader scans for commonMagic and fills in each response
// pointer before handing control to the kernel entry point.
var (
	memmapReq = memmapRequest{
		id:       [4]uint64{commonMagic[0], commonMagic[1], 0x2187f79e8612de07, 0x5d6b43a6c1e14002},
		revision: 0,
	}
	hhdmReq = hhdmRequest{
		id:       [4]uint64{commonMagic[0], commonMagic[1], 0x48dcf1cb8ad2b852, 0x63984e959a98244b},
		revision: 0,
	}
	kernelAddressReq = kernelAddressRequest{
		id:       [4]uint64{commonMagic[0], commonMagic[1], 0x71ba76863cc55f63, 0xb2644a48c516a487},
		revision: 0,
	}
	framebufferReq = framebufferRequest{
		id:       [4]uint64{commonMagic[0], commonMagic[1], 0x9d5827dcd881dd75, 0xa3148604f6fab11b},
		revision: 0,
	}
)

// MemoryMapEntry describes one physical memory region handed off by the
// bootloader, in the kernel's own vocabulary.
type MemoryMapEntry struct {
	PhysAddress uint64
	Length      uint64
	Type        MemoryEntryType
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region.
// The visitor returns true to continue the scan or false to abort it.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// VisitMemRegions invokes visitor once for every region in the memory map
// the bootloader handed off. It must not be called before the bootloader
// has populated memmapReq.response.
func VisitMemRegions(visitor MemRegionVisitor) {
	resp := memmapReq.response
	if resp == nil {
		return
	}

	base := uintptr(unsafe.Pointer(resp.entries))
	for i := uint64(0); i < resp.entryCount; i++ {
		entryPtrPtr := (**memmapEntry)(unsafe.Pointer(base + uintptr(i)*unsafe.Sizeof(uintptr(0))))
		e := *entryPtrPtr

		region := MemoryMapEntry{PhysAddress: e.Base, Length: e.Length, Type: e.Type}
		if !visitor(&region) {
			return
		}
	}
}

// HHDMOffset returns the virtual address offset at which the bootloader
// mapped all physical memory linearly (the higher-half direct map).
func HHDMOffset() uintptr {
	if hhdmReq.response == nil {
		return 0
	}
	return uintptr(hhdmReq.response.offset)
}

// KernelPhysicalBase returns the physical address the kernel image was
// loaded at.
func KernelPhysicalBase() uintptr {
	if kernelAddressReq.response == nil {
		return 0
	}
	return uintptr(kernelAddressReq.response.physicalBase)
}

// KernelVirtualBase returns the virtual address the kernel image was
// linked and loaded at.
func KernelVirtualBase() uintptr {
	if kernelAddressReq.response == nil {
		return 0
	}
	return uintptr(kernelAddressReq.response.virtualBase)
}

// FramebufferInfo describes the bootloader-initialized linear framebuffer,
// in the same shape multiboot.FramebufferInfo used for the multiboot2
// boot path.
type FramebufferInfo struct {
	PhysAddr uint64
	Pitch    uint32
	Width    uint32
	Height   uint32
	Bpp      uint8
}

// SetMemMap installs a synthetic memory map response, bypassing the
// bootloader handoff. It exists so that tests (and any code running
// outside of a real Limine boot) can drive VisitMemRegions without a
// bootloader present.
func SetMemMap(entries []MemoryMapEntry) {
	raw := make([]memmapEntry, len(entries))
	ptrs := make([]*memmapEntry, len(entries))
	for i, e := range entries {
		raw[i] = memmapEntry{Base: e.PhysAddress, Length: e.Length, Type: e.Type}
		ptrs[i] = &raw[i]
	}

	resp := &memmapResponse{
		entryCount: uint64(len(ptrs)),
	}
	if len(ptrs) > 0 {
		resp.entries = &ptrs[0]
	}
	memmapReq.response = resp
}

// SetHHDMOffset installs a synthetic higher-half direct map offset. See
// SetMemMap.
func SetHHDMOffset(offset uintptr) {
	hhdmReq.response = &hhdmResponse{offset: uint64(offset)}
}

// SetKernelAddress installs synthetic kernel load addresses. See SetMemMap.
func SetKernelAddress(physicalBase, virtualBase uintptr) {
	kernelAddressReq.response = &kernelAddressResponse{
		physicalBase: uint64(physicalBase),
		virtualBase:  uint64(virtualBase),
	}
}

// SetFramebuffer installs a synthetic framebuffer response. See SetMemMap.
func SetFramebuffer(fb FramebufferInfo) {
	raw := &framebuffer{
		address: uintptr(fb.PhysAddr),
		width:   uint64(fb.Width),
		height:  uint64(fb.Height),
		pitch:   uint64(fb.Pitch),
		bpp:     uint16(fb.Bpp),
	}
	framebufferReq.response = &framebufferResponse{
		framebufferCount: 1,
		framebuffers:     &raw,
	}
}

// GetFramebufferInfo returns the first framebuffer reported by the
// bootloader, or nil if none was initialized.
func GetFramebufferInfo() *FramebufferInfo {
	resp := framebufferReq.response
	if resp == nil || resp.framebufferCount == 0 {
		return nil
	}

	base := uintptr(unsafe.Pointer(resp.framebuffers))
	fbPtrPtr := (**framebuffer)(unsafe.Pointer(base))
	fb := *fbPtrPtr

	return &FramebufferInfo{
		PhysAddr: uint64(fb.address),
		Pitch:    uint32(fb.pitch),
		Width:    uint32(fb.width),
		Height:   uint32(fb.height),
		Bpp:      uint8(fb.bpp),
	}
}
