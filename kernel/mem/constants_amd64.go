// +build amd64

package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// MaxPageOrder defines the maximum page order that can be requested by
	// a page-based allocator.
	MaxPageOrder = PageOrder(9)

	// UserSpaceEnd is the first address of the canonical higher half on
	// amd64, i.e. the boundary between user and kernel memory. Every
	// pointer a system call receives from user mode, and every address
	// the ELF loader maps, must fall below it.
	UserSpaceEnd = uintptr(0xFFFF800000000000)
)
