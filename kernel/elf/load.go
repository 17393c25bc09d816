package elf

import (
	"unsafe"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/pmm"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/vmm"
)

// ArgvLimit bounds the number of command line arguments (including argv[0])
// a loaded image's bootstrap stack will carry.
const ArgvLimit = 32

// userStringLimit is the longest single argv entry this loader will place
// on the bootstrap stack, matching the syscall gate's own string size
// limit (kernel/syscall.UserStringLimit) so a validated argv from a system
// call never overflows the stack layout computed here.
const userStringLimit = 128

// defaultUserStackPages sizes the initial user stack: 16 pages (64 KiB on
// this architecture), placed immediately below userSpaceEnd.
const defaultUserStackPages = 16

var (
	// ErrMemoryError covers a page allocation or mapping failure while
	// building the process's address space.
	ErrMemoryError = &kernel.Error{Module: "elf", Message: "address space setup failed"}

	// ErrBadStdio names incomplete standard stream wiring (stdin, stdout,
	// stderr). Load takes no stream descriptors and never returns it.
	ErrBadStdio = &kernel.Error{Module: "elf", Message: "standard stream wiring is incomplete"}
)

// bootstrapInfo is written to the top of the user stack; its address is the
// value the new thread's initial stack pointer resolves to. The bootstrap
// assembly stub reads Argc/Argv out of it before jumping to Header.Entry,
// the same role original_source's ELFLoader plays by hand-building argv on
// the stack before the app's first instruction runs.
type bootstrapInfo struct {
	Argc uint64
	Argv uintptr
}

// Region is a run of consecutive mapped pages; kernel/app records one per
// LOAD segment and the user stack so Table.Exit can free exactly what was
// mapped, plus one more each time GrowHeap commits fresh pages.
type Region struct {
	Start uintptr
	Pages int
}

// LoadResult is everything Load produces about a freshly loaded process.
type LoadResult struct {
	AddressSpace     vmm.AddressSpace
	EntryPoint       uintptr
	HeapStart        uintptr
	HeapLimit        uintptr
	UserStackPointer uintptr
	Vendor           VendorInfo
	HasVendor        bool
	Regions          []Region
}

// Load parses data as an ELF64 executable, builds a fresh address space
// rooted at pdtFrame (allocated by the caller — kernel/app owns process
// resource allocation), maps every LOAD segment with the requested
// protection, and lays out a user stack carrying argv. userSpaceEnd is the
// system-call gate's kernel-memory threshold: every address this loader
// touches must fall below it.
//
// Load temporarily activates the new address space to populate it, then
// restores whichever address space was active on entry.
func Load(data []byte, argv []string, pdtFrame pmm.Frame, userSpaceEnd uintptr) (*LoadResult, *kernel.Error) {
	img, err := Parse(data, userSpaceEnd)
	if err != nil {
		return nil, err
	}
	if len(argv) > ArgvLimit {
		return nil, ErrBadHeader
	}

	callerAS := vmm.CurrentAddressSpace()
	as, err := vmm.NewAddressSpace(pdtFrame)
	if err != nil {
		return nil, err
	}
	as.Activate()
	defer callerAS.Activate()

	heapStart := uintptr(0)
	var regions []Region
	for _, ph := range img.Loads {
		if err := mapLoadSegment(as, data, ph); err != nil {
			return nil, err
		}
		start := pageAlignDown(uintptr(ph.VirtualAddress))
		end := pageAlignUp(uintptr(ph.VirtualAddress + ph.MemorySize))
		regions = append(regions, Region{Start: start, Pages: int((end - start) / uintptr(mem.PageSize))})
		if end > heapStart {
			heapStart = end
		}
	}

	stackTop := pageAlignDown(userSpaceEnd)
	stackBase := stackTop - defaultUserStackPages*uintptr(mem.PageSize)
	stackFlags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagUserAccessible | vmm.FlagNoExecute
	if err := as.Allocate(vmm.PageFromAddress(stackBase), stackFlags, defaultUserStackPages); err != nil {
		return nil, ErrMemoryError
	}
	regions = append(regions, Region{Start: stackBase, Pages: defaultUserStackPages})

	sp, err := buildArgvStack(stackTop, argv)
	if err != nil {
		return nil, err
	}

	return &LoadResult{
		AddressSpace:     as,
		EntryPoint:       uintptr(img.Header.Entry),
		HeapStart:        heapStart,
		HeapLimit:        heapStart,
		UserStackPointer: sp,
		Vendor:           img.Vendor,
		HasVendor:        img.HasVendor,
		Regions:          regions,
	}, nil
}

// mapLoadSegment allocates writable pages for ph in the (already active) as,
// copies the file bytes, zero-fills the BSS tail, then downgrades the page
// flags to the segment's requested {R,W,X} permissions.
//
// data's backing array is kernel memory (read off a vfs.Node into a kernel
// buffer by the caller); dereferencing its address here is safe even
// though as is now the active address space because the kernel's higher
// half stays mapped into every address space.
func mapLoadSegment(as vmm.AddressSpace, data []byte, ph ProgramHeader) *kernel.Error {
	startAddr := pageAlignDown(uintptr(ph.VirtualAddress))
	endAddr := pageAlignUp(uintptr(ph.VirtualAddress + ph.MemorySize))
	pageCount := int((endAddr - startAddr) / uintptr(mem.PageSize))

	if err := as.Allocate(vmm.PageFromAddress(startAddr), vmm.FlagPresent|vmm.FlagRW|vmm.FlagUserAccessible, pageCount); err != nil {
		return ErrMemoryError
	}

	if ph.FileSize > 0 {
		src := uintptr(unsafe.Pointer(&data[ph.Offset]))
		mem.Memcopy(src, uintptr(ph.VirtualAddress), mem.Size(ph.FileSize))
	}
	if ph.MemorySize > ph.FileSize {
		mem.Memset(uintptr(ph.VirtualAddress)+uintptr(ph.FileSize), 0, mem.Size(ph.MemorySize-ph.FileSize))
	}

	page := vmm.PageFromAddress(startAddr)
	for i := 0; i < pageCount; i++ {
		if err := as.ModifyPageFlags(page, vmm.FlagRW, ph.Writable()); err != nil {
			return ErrMemoryError
		}
		if err := as.ModifyPageFlags(page, vmm.FlagNoExecute, !ph.Executable()); err != nil {
			return ErrMemoryError
		}
		page++
	}

	return nil
}

// buildArgvStack writes argv's strings, a null-terminated pointer array and
// a bootstrapInfo struct below stackTop, returning the stack pointer the
// new thread should start with (the address of the bootstrapInfo struct).
func buildArgvStack(stackTop uintptr, argv []string) (uintptr, *kernel.Error) {
	cursor := stackTop
	ptrs := make([]uintptr, len(argv))

	for i, a := range argv {
		if len(a)+1 > userStringLimit {
			return 0, ErrBadHeader
		}
		cursor -= uintptr(len(a) + 1)
		cursor &^= 0x7 // keep string storage 8-byte aligned for the next write
		writeCString(cursor, a)
		ptrs[i] = cursor
	}

	// Null-terminated argv pointer array.
	cursor -= uintptr(len(ptrs)+1) * unsafe.Sizeof(uintptr(0))
	cursor &^= 0xF
	argvBase := cursor
	for i, p := range ptrs {
		*(*uintptr)(unsafe.Pointer(argvBase + uintptr(i)*unsafe.Sizeof(uintptr(0)))) = p
	}
	*(*uintptr)(unsafe.Pointer(argvBase + uintptr(len(ptrs))*unsafe.Sizeof(uintptr(0)))) = 0

	cursor -= unsafe.Sizeof(bootstrapInfo{})
	cursor &^= 0xF
	info := (*bootstrapInfo)(unsafe.Pointer(cursor))
	info.Argc = uint64(len(argv))
	info.Argv = argvBase

	return cursor, nil
}

func pageAlignDown(addr uintptr) uintptr {
	return addr &^ (uintptr(mem.PageSize) - 1)
}

func pageAlignUp(addr uintptr) uintptr {
	return pageAlignDown(addr+uintptr(mem.PageSize)-1)
}

func writeCString(addr uintptr, s string) {
	mem.Memcopy(uintptr(unsafe.Pointer(unsafe.StringData(s))), addr, mem.Size(len(s)))
	*(*byte)(unsafe.Pointer(addr + uintptr(len(s)))) = 0
}
