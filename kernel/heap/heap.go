// Package heap implements the kernel's slab heap: a family of object caches
// indexed by power-of-two size classes, backed by the VMM. It services every
// dynamic allocation the kernel makes once boot-strapping is complete.
package heap

import (
	"unsafe"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/kfmt/early"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/pmm"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/vmm"
)

const (
	// minSizeClassShift is log2 of the smallest object a cache serves (8 B).
	minSizeClassShift = 3

	// maxSizeClassShift is log2 of the largest object a cache serves
	// (8 KiB); bigger requests fall back to a direct VMM allocation.
	maxSizeClassShift = 13

	numSizeClasses = maxSizeClassShift - minSizeClassShift + 1

	maxObjSize = uintptr(1) << maxSizeClassShift

	// minSlabObjects is the minimum number of objects a freshly grown slab
	// must be able to hold; small classes pack many objects into a single
	// page while the biggest class needs several pages for the same count.
	minSlabObjects = 8
)

var (
	// ErrOutOfMemory is returned once the backing VMM region or frame
	// allocator can no longer satisfy a growth request.
	ErrOutOfMemory = &kernel.Error{Module: "heap", Message: "heap exhausted"}

	errDoubleInit = &kernel.Error{Module: "heap", Message: "heap already initialized"}

	caches [numSizeClasses]objectCache

	bigAllocs *bigAllocHeader

	// growRegionFn reserves a fresh range of kernel virtual address space
	// for a slab or big allocation; it is mocked by tests and automatically
	// inlined by the compiler.
	growRegionFn = vmm.EarlyReserveRegion
	mapFn        = vmm.Map

	// allocFrame is supplied by Init; it is the physical frame allocator the
	// PMM wires up once its pools are live (allocator.FrameAllocator.AllocFrame).
	allocFrame func() (pmm.Frame, *kernel.Error)

	// virtualMap, when set via SetVirtualMap, is tagged with KernelHeap
	// regions as slabs and big allocations grow; it is optional bookkeeping
	// and growth still succeeds if it is nil or a claim fails.
	virtualMap *mem.Map

	initialized bool
)

// objectCache serves fixed-size objects of size objSize from a linked list
// of slabs, each carrying its own free-list of objects.
type objectCache struct {
	objSize uintptr
	slabs   *slabHeader
}

// slabHeader sits at the very start of a slab (one or more contiguous
// pages) and tracks the free-list of fixed-size objects living after it.
type slabHeader struct {
	next      *slabHeader
	cache     *objectCache
	freeList  unsafe.Pointer
	size      uintptr // total slab size in bytes, header included
	objCount  uint32
	freeCount uint32
}

// bigAllocHeader precedes every direct-VMM allocation (requests larger than
// maxObjSize) and lets Free locate and unlink it.
type bigAllocHeader struct {
	next  *bigAllocHeader
	prev  *bigAllocHeader
	pages int
}

// SetVirtualMap registers the kernel's virtual memory map so that heap
// growth is reflected in it as KernelHeap regions.
func SetVirtualMap(m *mem.Map) {
	virtualMap = m
}

// Init wires the heap to the physical frame allocator; it must be called
// once, after the PMM is ready to hand out frames.
func Init(frameAllocFn func() (pmm.Frame, *kernel.Error)) *kernel.Error {
	if initialized {
		return errDoubleInit
	}
	allocFrame = frameAllocFn
	for i := range caches {
		caches[i].objSize = uintptr(1) << (minSizeClassShift + i)
	}
	initialized = true
	early.Printf("[heap] %d size classes from %d B to %d B\n", numSizeClasses, uintptr(1)<<minSizeClassShift, maxObjSize)
	return nil
}

// Alloc returns a pointer to a zero-filled block of at least size bytes, or
// ErrOutOfMemory if neither an existing slab nor a freshly grown one can
// satisfy the request.
func Alloc(size mem.Size) (unsafe.Pointer, *kernel.Error) {
	if size == 0 {
		size = 1
	}

	if uintptr(size) > maxObjSize {
		return allocLarge(size)
	}

	c := &caches[sizeClassIndex(uintptr(size))]
	obj, err := c.alloc()
	if err != nil {
		return nil, err
	}
	mem.Memset(uintptr(obj), 0, mem.Size(c.objSize))
	return obj, nil
}

// Free returns a pointer previously obtained from Alloc to its owning slab
// or, for a big allocation, unlinks its tracking header.
func Free(ptr unsafe.Pointer) *kernel.Error {
	if ptr == nil {
		return nil
	}

	addr := uintptr(ptr)
	for i := range caches {
		for s := caches[i].slabs; s != nil; s = s.next {
			base := uintptr(unsafe.Pointer(s))
			if addr >= base && addr < base+s.size {
				*(*unsafe.Pointer)(ptr) = s.freeList
				s.freeList = ptr
				s.freeCount++
				return nil
			}
		}
	}

	return freeLarge(ptr)
}

// sizeClassIndex returns the index of the smallest size class able to hold
// size bytes.
func sizeClassIndex(size uintptr) int {
	shift := minSizeClassShift
	class := uintptr(1) << shift
	for class < size {
		shift++
		class <<= 1
	}
	return shift - minSizeClassShift
}

// alloc returns an object from an existing slab with free capacity, growing
// the cache by one slab if none is available.
func (c *objectCache) alloc() (unsafe.Pointer, *kernel.Error) {
	for s := c.slabs; s != nil; s = s.next {
		if s.freeList != nil {
			return s.takeFree(), nil
		}
	}

	s, err := c.growSlab()
	if err != nil {
		return nil, err
	}
	return s.takeFree(), nil
}

// takeFree pops the head of the slab's free-list. Each free object's first
// machine word stores the address of the next free object (or nil).
func (s *slabHeader) takeFree() unsafe.Pointer {
	obj := s.freeList
	s.freeList = *(*unsafe.Pointer)(obj)
	s.freeCount--
	return obj
}

// growSlab reserves and maps enough fresh pages to host at least
// minSlabObjects objects of c.objSize, lays out the free-list across them,
// and links the new slab at the head of the cache's slab list.
func (c *objectCache) growSlab() (*slabHeader, *kernel.Error) {
	hdrSize := unsafe.Sizeof(slabHeader{})
	need := hdrSize + uintptr(minSlabObjects)*c.objSize
	pages := mem.Size(need).Pages()

	addr, err := growRegionFn(mem.Size(pages) * mem.PageSize)
	if err != nil {
		return nil, ErrOutOfMemory
	}

	for i := uint32(0); i < pages; i++ {
		frame, err := allocFrame()
		if err != nil {
			return nil, ErrOutOfMemory
		}
		page := vmm.PageFromAddress(addr + uintptr(i)*uintptr(mem.PageSize))
		if err := mapFn(page, frame, vmm.FlagPresent|vmm.FlagRW|vmm.FlagNoExecute); err != nil {
			return nil, err
		}
	}

	claimRegion(addr, mem.Size(pages)*mem.PageSize)

	slabSize := uintptr(pages) * uintptr(mem.PageSize)
	firstObj := (addr + hdrSize + c.objSize - 1) &^ (c.objSize - 1)
	capacity := uint32((slabSize - (firstObj - addr)) / c.objSize)

	hdr := (*slabHeader)(unsafe.Pointer(addr))
	hdr.cache = c
	hdr.size = slabSize
	hdr.objCount = capacity
	hdr.freeCount = capacity

	var prev unsafe.Pointer
	for i := uint32(0); i < capacity; i++ {
		obj := unsafe.Pointer(firstObj + uintptr(i)*c.objSize)
		*(*unsafe.Pointer)(obj) = prev
		prev = obj
	}
	hdr.freeList = prev

	hdr.next = c.slabs
	c.slabs = hdr
	return hdr, nil
}

// allocLarge services requests bigger than the largest size class with a
// direct, page-granular VMM allocation tracked by a bigAllocHeader.
func allocLarge(size mem.Size) (unsafe.Pointer, *kernel.Error) {
	hdrSize := unsafe.Sizeof(bigAllocHeader{})
	total := mem.Size(uintptr(size) + hdrSize)
	pages := int(total.Pages())

	addr, err := growRegionFn(mem.Size(pages) * mem.PageSize)
	if err != nil {
		return nil, ErrOutOfMemory
	}

	for i := 0; i < pages; i++ {
		frame, err := allocFrame()
		if err != nil {
			return nil, ErrOutOfMemory
		}
		page := vmm.PageFromAddress(addr + uintptr(i)*uintptr(mem.PageSize))
		if err := mapFn(page, frame, vmm.FlagPresent|vmm.FlagRW|vmm.FlagNoExecute); err != nil {
			return nil, err
		}
	}

	claimRegion(addr, mem.Size(pages)*mem.PageSize)

	hdr := (*bigAllocHeader)(unsafe.Pointer(addr))
	hdr.pages = pages
	hdr.next = bigAllocs
	hdr.prev = nil
	if bigAllocs != nil {
		bigAllocs.prev = hdr
	}
	bigAllocs = hdr

	obj := unsafe.Pointer(addr + hdrSize)
	mem.Memset(uintptr(obj), 0, size)
	return obj, nil
}

// freeLarge unlinks the bigAllocHeader preceding ptr from the tracking
// list. The backing frames are left mapped; nothing in the kernel currently
// requests large enough objects often enough to make reclaiming them worth
// the extra address-space bookkeeping.
func freeLarge(ptr unsafe.Pointer) *kernel.Error {
	hdrSize := unsafe.Sizeof(bigAllocHeader{})
	hdr := (*bigAllocHeader)(unsafe.Pointer(uintptr(ptr) - hdrSize))

	if hdr.prev != nil {
		hdr.prev.next = hdr.next
	} else {
		bigAllocs = hdr.next
	}
	if hdr.next != nil {
		hdr.next.prev = hdr.prev
	}
	return nil
}

// claimRegion best-effort tags [addr, addr+size) as KernelHeap in the
// registered virtual memory map; growth proceeds regardless of the outcome.
func claimRegion(addr uintptr, size mem.Size) {
	if virtualMap == nil {
		return
	}
	_ = virtualMap.Add(mem.Region{Start: addr, Size: size, Kind: mem.KernelHeap})
}
