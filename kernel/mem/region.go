package mem

// RegionKind classifies a physical or virtual memory region.
type RegionKind uint8

const (
	// Usable memory is free for the PMM to hand out.
	Usable RegionKind = iota

	// Reserved memory must never be touched by the kernel.
	Reserved

	// BootloaderReclaimable memory holds bootloader structures that can
	// be reclaimed as Usable once the kernel no longer needs them.
	BootloaderReclaimable

	// KernelCode covers the loaded kernel image (text, data, bss).
	KernelCode

	// PmmReserved covers the physical memory manager's frame index.
	PmmReserved

	// VmmReserved covers virtual memory manager bookkeeping structures.
	VmmReserved

	// KernelHeap covers the slab heap's backing pages.
	KernelHeap

	// HigherHalfDirectMap covers the linear map of all physical RAM.
	HigherHalfDirectMap

	// Userspace covers the portion of an address space below the
	// system-call gate's kernel-memory threshold.
	Userspace
)

var regionKindName = [...]string{
	"Usable",
	"Reserved",
	"BootloaderReclaimable",
	"KernelCode",
	"PmmReserved",
	"VmmReserved",
	"KernelHeap",
	"HigherHalfDirectMap",
	"Userspace",
}

// String returns the name of the region kind.
func (k RegionKind) String() string {
	if int(k) >= len(regionKindName) {
		return "Unknown"
	}
	return regionKindName[k]
}

// Region describes a contiguous span of address space tagged with a kind.
type Region struct {
	Start uintptr
	Size  Size
	Kind  RegionKind
}

// End returns the address immediately past this region.
func (r Region) End() uintptr {
	return r.Start + uintptr(r.Size)
}

// Overlaps reports whether r and other share any address.
func (r Region) Overlaps(other Region) bool {
	return r.Start < other.End() && other.Start < r.End()
}

// adjacentTo reports whether other starts exactly where r ends and both
// regions carry the same kind, making them mergeable.
func (r Region) adjacentTo(other Region) bool {
	return r.Kind == other.Kind && r.End() == other.Start
}
