package heap

import (
	"testing"
	"unsafe"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/pmm"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/vmm"
)

func resetHeap(t *testing.T, backing []byte) {
	t.Helper()

	for i := range caches {
		caches[i] = objectCache{}
	}
	bigAllocs = nil
	initialized = false
	virtualMap = nil

	cursor := uintptr(0)
	growRegionFn = func(size mem.Size) (uintptr, *kernel.Error) {
		if cursor+uintptr(size) > uintptr(len(backing)) {
			return 0, &kernel.Error{Module: "heap_test", Message: "backing buffer exhausted"}
		}
		addr := uintptr(unsafe.Pointer(&backing[0])) + cursor
		cursor += uintptr(size)
		return addr, nil
	}
	mapFn = func(_ vmm.Page, _ pmm.Frame, _ vmm.PageTableEntryFlag) *kernel.Error {
		return nil
	}

	var nextFrame pmm.Frame = 1
	allocFrame = func() (pmm.Frame, *kernel.Error) {
		f := nextFrame
		nextFrame++
		return f, nil
	}

	if err := Init(allocFrame); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		growRegionFn = vmm.EarlyReserveRegion
		mapFn = vmm.Map
		allocFrame = nil
		initialized = false
		virtualMap = nil
		for i := range caches {
			caches[i] = objectCache{}
		}
		bigAllocs = nil
	})
}

func TestInitRejectsDoubleInit(t *testing.T) {
	backing := make([]byte, 64*mem.Kb)
	resetHeap(t, backing)

	if err := Init(allocFrame); err != errDoubleInit {
		t.Fatalf("expected errDoubleInit; got %v", err)
	}
}

func TestSizeClassIndex(t *testing.T) {
	specs := []struct {
		size     uintptr
		expClass uintptr
	}{
		{1, 8},
		{8, 8},
		{9, 16},
		{100, 128},
		{8192, 8192},
	}

	for specIndex, spec := range specs {
		idx := sizeClassIndex(spec.size)
		got := uintptr(1) << (minSizeClassShift + idx)
		if got != spec.expClass {
			t.Errorf("[spec %d] expected size class %d for size %d; got %d", specIndex, spec.expClass, spec.size, got)
		}
	}
}

func TestAllocSmallObjectsFromSameSlab(t *testing.T) {
	backing := make([]byte, 64*mem.Kb)
	resetHeap(t, backing)

	first, err := Alloc(16)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Alloc(16)
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatal("expected distinct objects from consecutive Alloc calls")
	}

	c := &caches[sizeClassIndex(16)]
	if c.slabs == nil {
		t.Fatal("expected a slab to have been allocated")
	}
	if exp := c.slabs.objCount - 2; c.slabs.freeCount != exp {
		t.Fatalf("expected %d free objects remaining; got %d", exp, c.slabs.freeCount)
	}
}

func TestAllocAndFreeReusesObject(t *testing.T) {
	backing := make([]byte, 64*mem.Kb)
	resetHeap(t, backing)

	obj, err := Alloc(32)
	if err != nil {
		t.Fatal(err)
	}

	if err := Free(obj); err != nil {
		t.Fatal(err)
	}

	again, err := Alloc(32)
	if err != nil {
		t.Fatal(err)
	}
	if again != obj {
		t.Fatalf("expected freed object to be reused; got a different address")
	}
}

func TestAllocGrowsANewSlabWhenExhausted(t *testing.T) {
	backing := make([]byte, 4*mem.Mb)
	resetHeap(t, backing)

	c := &caches[sizeClassIndex(64)]
	for i := 0; i < 4096; i++ {
		if _, err := Alloc(64); err != nil {
			t.Fatal(err)
		}
		if c.slabs != nil && c.slabs.next != nil {
			return
		}
	}
	t.Fatal("expected repeated allocation to eventually grow a second slab")
}

func TestAllocLargeObjectFallsBackToDirectMapping(t *testing.T) {
	backing := make([]byte, 1*mem.Mb)
	resetHeap(t, backing)

	obj, err := Alloc(mem.Size(maxObjSize) + 1)
	if err != nil {
		t.Fatal(err)
	}
	if bigAllocs == nil {
		t.Fatal("expected a bigAllocHeader to track the large allocation")
	}

	if err := Free(obj); err != nil {
		t.Fatal(err)
	}
	if bigAllocs != nil {
		t.Fatal("expected the bigAllocHeader to be unlinked after Free")
	}
}

func TestFreeUnknownPointerFallsThroughToBigAllocPath(t *testing.T) {
	backing := make([]byte, 64*mem.Kb)
	resetHeap(t, backing)

	obj, err := Alloc(mem.Size(maxObjSize) + 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := Free(obj); err != nil {
		t.Fatal(err)
	}
}

func TestSetVirtualMapClaimsGrowthAsKernelHeap(t *testing.T) {
	backing := make([]byte, 64*mem.Kb)
	resetHeap(t, backing)

	var m mem.Map
	SetVirtualMap(&m)

	if _, err := Alloc(16); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, r := range m.Regions() {
		if r.Kind == mem.KernelHeap {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the virtual map to gain a KernelHeap region")
	}
}
