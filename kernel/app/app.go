// Package app implements the process table: starting an ELF executable as a
// running app, tracking its address space, heap, open VFS resources and
// stdio wiring, and the exit/join lifecycle that releases those resources
// in a fixed order.
package app

import (
	"path"
	"strings"

	"github.com/Ewogijk/runeOS-sub002/kernel"
	"github.com/Ewogijk/runeOS-sub002/kernel/device/ps2"
	"github.com/Ewogijk/runeOS-sub002/kernel/driver/tty"
	"github.com/Ewogijk/runeOS-sub002/kernel/driver/video/console"
	"github.com/Ewogijk/runeOS-sub002/kernel/elf"
	"github.com/Ewogijk/runeOS-sub002/kernel/log"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/pmm/allocator"
	"github.com/Ewogijk/runeOS-sub002/kernel/mem/vmm"
	"github.com/Ewogijk/runeOS-sub002/kernel/sched"
	"github.com/Ewogijk/runeOS-sub002/kernel/sync"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

var logger = log.New("app")

// NoExitCode is the sentinel ExitCode value of an app that is still
// running.
const NoExitCode = int(^uint(0) >> 1)

// ArgvLimit bounds the number of command line arguments (including argv[0])
// an app can be started with.
const ArgvLimit = elf.ArgvLimit

var (
	errAppNotFound   = &kernel.Error{Module: "app", Message: "executable path does not exist"}
	errBadWorkingDir = &kernel.Error{Module: "app", Message: "working directory does not exist"}
	errTooManyArgs   = &kernel.Error{Module: "app", Message: "too many command line arguments"}
	errNoSuchHandle  = &kernel.Error{Module: "app", Message: "no app with the given handle"}
	errBadTarget     = &kernel.Error{Module: "app", Message: "stdio target is not supported"}
)

// TargetKind selects where a started app's stdin/stdout/stderr connects to.
type TargetKind uint8

const (
	// TargetVoid discards writes and never yields a read.
	TargetVoid TargetKind = iota

	// TargetInherit shares the starting app's own stream.
	TargetInherit

	// TargetFile opens Path for the stream, appending to it for
	// stdout/stderr.
	TargetFile

	// TargetConsole connects to the active display (stdout/stderr) or the
	// PS/2 keyboard (stdin). StartOS uses it for all three streams of the
	// first app.
	TargetConsole
)

// Target describes one of an app's three standard streams at start time.
type Target struct {
	Kind TargetKind
	Path string
}

// Version is an app's vendor-supplied major.minor.patch, decoded from its
// executable's vendor NOTE segment.
type Version struct {
	Major, Minor, Patch uint16
}

// Process is a running app: its identity, address space, heap bounds, and
// every resource it has open.
type Process struct {
	ID               uint16
	Path             string
	Name             string
	Vendor           string
	Version          Version
	WorkingDirectory string
	ExitCode         int

	load    elf.LoadResult
	regions []elf.Region

	mainThread *sched.Thread
	threads    []*sched.Thread
	joiners    []*sched.Thread

	nextNodeHandle uint16
	nodes          map[uint16]vfs.Node

	nextDirHandle uint16
	dirStreams    map[uint16]vfs.DirectoryStream

	Stdin, Stdout, Stderr Stream

	exited bool
}

// EntryPoint is the virtual address execution should begin at.
func (p *Process) EntryPoint() uintptr { return p.load.EntryPoint }

// UserStackPointer is the initial stack pointer built by the ELF loader.
func (p *Process) UserStackPointer() uintptr { return p.load.UserStackPointer }

// HeapStart and HeapLimit bound the app's heap, both initially equal (no
// pages committed yet).
func (p *Process) HeapStart() uintptr { return p.load.HeapStart }
func (p *Process) HeapLimit() uintptr { return p.load.HeapLimit }

// AddressSpace returns the app's address space, for system calls that map
// or change protection on pages directly rather than through GrowHeap.
func (p *Process) AddressSpace() vmm.AddressSpace { return p.load.AddressSpace }

// GrowHeap extends the heap by delta bytes (rounded up to a page), mapping
// fresh zeroed, writable, non-executable pages, and returns the new limit.
func (p *Process) GrowHeap(delta mem.Size) (uintptr, *kernel.Error) {
	pageCount := int((delta + mem.PageSize - 1) / mem.PageSize)
	if pageCount == 0 {
		return p.load.HeapLimit, nil
	}

	page := vmm.PageFromAddress(p.load.HeapLimit)
	flags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagUserAccessible | vmm.FlagNoExecute
	if err := p.load.AddressSpace.Allocate(page, flags, pageCount); err != nil {
		return 0, err
	}
	p.regions = append(p.regions, elf.Region{Start: p.load.HeapLimit, Pages: pageCount})
	p.load.HeapLimit += uintptr(pageCount) * uintptr(mem.PageSize)
	return p.load.HeapLimit, nil
}

// TrackRegion records a run of pages as belonging to this process so Exit
// frees it, for callers (the memory system calls) that map pages outside
// of GrowHeap's bump allocation.
func (p *Process) TrackRegion(start uintptr, pages int) {
	p.regions = append(p.regions, elf.Region{Start: start, Pages: pages})
}

// UntrackRegion removes a previously tracked region of exactly this
// start/pages and reports whether one was found.
func (p *Process) UntrackRegion(start uintptr, pages int) bool {
	for i, r := range p.regions {
		if r.Start == start && r.Pages == pages {
			p.regions = append(p.regions[:i], p.regions[i+1:]...)
			return true
		}
	}
	return false
}

// AddNodeHandle opens node under this process and returns the handle a
// system call should report back to user mode.
func (p *Process) AddNodeHandle(node vfs.Node) uint16 {
	h := p.nextNodeHandle
	p.nextNodeHandle++
	p.nodes[h] = node
	return h
}

// Node returns the open node for handle, or nil if there is none.
func (p *Process) Node(handle uint16) (vfs.Node, bool) {
	n, ok := p.nodes[handle]
	return n, ok
}

// CloseNode closes and forgets handle.
func (p *Process) CloseNode(handle uint16) *kernel.Error {
	n, ok := p.nodes[handle]
	if !ok {
		return errNoSuchHandle
	}
	delete(p.nodes, handle)
	return n.Close()
}

// AddDirStreamHandle registers an open directory stream and returns its
// handle.
func (p *Process) AddDirStreamHandle(ds vfs.DirectoryStream) uint16 {
	h := p.nextDirHandle
	p.nextDirHandle++
	p.dirStreams[h] = ds
	return h
}

// DirStream returns the open directory stream for handle, or nil if there
// is none.
func (p *Process) DirStream(handle uint16) (vfs.DirectoryStream, bool) {
	ds, ok := p.dirStreams[handle]
	return ds, ok
}

// CloseDirStream closes and forgets handle.
func (p *Process) CloseDirStream(handle uint16) *kernel.Error {
	ds, ok := p.dirStreams[handle]
	if !ok {
		return errNoSuchHandle
	}
	delete(p.dirStreams, handle)
	return ds.Close()
}

// Table is the kernel's process table: every running app, keyed by a
// monotonically assigned handle.
type Table struct {
	lock    sync.Spinlock
	nextID  uint16
	procs   map[uint16]*Process
	mounts  *vfs.MountTable
	console *tty.Vt
}

// NewTable returns an empty process table resolving paths against mounts
// and wiring console-target streams to term.
func NewTable(mounts *vfs.MountTable, term *tty.Vt) *Table {
	return &Table{
		procs:   make(map[uint16]*Process),
		mounts:  mounts,
		console: term,
	}
}

// Get returns the process with the given handle, or nil if none is
// running under it.
func (t *Table) Get(id uint16) *Process {
	t.lock.Acquire()
	defer t.lock.Release()
	return t.procs[id]
}

// StartOS starts the very first app: its stdio streams connect directly to
// the console and keyboard, and its working directory defaults to the
// executable's own directory.
func (t *Table) StartOS(execPath string, argv []string, workingDir string) (*Process, *kernel.Error) {
	return t.start(execPath, argv, workingDir, nil, Target{Kind: TargetConsole}, Target{Kind: TargetConsole}, Target{Kind: TargetConsole})
}

// StartNewApp starts a new app on behalf of caller, resolving relative paths
// against caller's working directory and resolving TargetInherit against
// caller's own streams.
func (t *Table) StartNewApp(caller *Process, execPath string, argv []string, workingDir string, stdin, stdout, stderr Target) (*Process, *kernel.Error) {
	return t.start(execPath, argv, workingDir, caller, stdin, stdout, stderr)
}

func (t *Table) start(execPath string, argv []string, workingDir string, caller *Process, stdin, stdout, stderr Target) (*Process, *kernel.Error) {
	if len(argv) > ArgvLimit {
		return nil, errTooManyArgs
	}

	callerDir := "/"
	if caller != nil {
		callerDir = caller.WorkingDirectory
	}
	absPath := resolvePath(callerDir, execPath)

	if _, err := t.mounts.FindNode(absPath); err != nil {
		return nil, errAppNotFound
	}

	absWorkDir := path.Dir(absPath)
	if workingDir != "" {
		absWorkDir = resolvePath(callerDir, workingDir)
	}
	if info, err := t.mounts.FindNode(absWorkDir); err != nil || info.Kind != vfs.Directory {
		return nil, errBadWorkingDir
	}

	data, err := t.readWholeFile(absPath)
	if err != nil {
		return nil, err
	}

	pdtFrame, aerr := allocator.AllocFrame()
	if aerr != nil {
		return nil, aerr
	}

	load, err := elf.Load(data, argv, pdtFrame, mem.UserSpaceEnd)
	if err != nil {
		return nil, err
	}

	t.lock.Acquire()
	t.nextID++
	id := t.nextID
	t.lock.Release()

	p := &Process{
		ID:               id,
		Path:             absPath,
		Name:             appName(absPath),
		WorkingDirectory: absWorkDir,
		ExitCode:         NoExitCode,
		load:             *load,
		regions:          append([]elf.Region(nil), load.Regions...),
		nodes:            make(map[uint16]vfs.Node),
		dirStreams:       make(map[uint16]vfs.DirectoryStream),
	}
	if load.HasVendor {
		p.Vendor = load.Vendor.Name
		p.Version = Version{load.Vendor.Major, load.Vendor.Minor, load.Vendor.Patch}
	}

	p.Stdin, err = t.resolveStream(stdin, caller, roleStdin)
	if err != nil {
		return nil, err
	}
	p.Stdout, err = t.resolveStream(stdout, caller, roleStdout)
	if err != nil {
		return nil, err
	}
	p.Stderr, err = t.resolveStream(stderr, caller, roleStderr)
	if err != nil {
		return nil, err
	}

	// Saved.RSP is left zero; the arch-specific bootstrap trampoline that
	// builds a thread's first kernel-stack frame (so contextSwitch's first
	// restore drops straight into user mode at EntryPoint/UserStackPointer)
	// lives below contextSwitch, same as the rest of the context-switch path.
	p.mainThread = &sched.Thread{
		ID:          id,
		Name:        p.Name,
		State:       sched.Ready,
		Priority:    sched.Normal,
		UserStack:   load.UserStackPointer,
		OwningAppID: uint32(id),
	}
	p.threads = []*sched.Thread{p.mainThread}

	t.lock.Acquire()
	t.procs[id] = p
	t.lock.Release()

	sched.Schedule(p.mainThread)
	logger.Info("started %s as handle %d", p.Path, p.ID)
	return p, nil
}

// streamRole identifies which of the three standard streams is being
// resolved, since TargetConsole and TargetInherit behave differently for
// each.
type streamRole uint8

const (
	roleStdin streamRole = iota
	roleStdout
	roleStderr
)

func (t *Table) resolveStream(target Target, caller *Process, role streamRole) (Stream, *kernel.Error) {
	switch target.Kind {
	case TargetVoid:
		return voidStream{}, nil
	case TargetConsole:
		switch role {
		case roleStdin:
			return keyboardInStream{readFn: readPS2Key}, nil
		case roleStderr:
			return consoleOutStream{term: t.console, fg: console.Red}, nil
		default:
			return consoleOutStream{term: t.console, fg: console.White}, nil
		}
	case TargetInherit:
		if caller == nil {
			return nil, errBadTarget
		}
		switch role {
		case roleStdin:
			return caller.Stdin, nil
		case roleStderr:
			return caller.Stderr, nil
		default:
			return caller.Stdout, nil
		}
	case TargetFile:
		mode := vfs.ReadOnly
		if role != roleStdin {
			mode = vfs.Append
		}
		absPath := target.Path
		if caller != nil {
			absPath = resolvePath(caller.WorkingDirectory, target.Path)
		}
		node, err := t.mounts.Open(absPath, mode, nil)
		if err != nil {
			return nil, err
		}
		return nodeStream{node: node}, nil
	default:
		return nil, errBadTarget
	}
}

// readWholeFile opens path read-only and reads its entire content into a
// freshly allocated kernel buffer, the form elf.Load expects.
func (t *Table) readWholeFile(path string) ([]byte, *kernel.Error) {
	node, err := t.mounts.Open(path, vfs.ReadOnly, nil)
	if err != nil {
		return nil, err
	}
	defer node.Close()

	size := node.Info().Size
	buf := make([]byte, size)
	total := 0
	for total < len(buf) {
		n, err := node.Read(buf[total:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return buf[:total], nil
}

// Exit tears down p's resources in a fixed order — open directory streams,
// open nodes, the address space's user-mode pages, then non-main and main
// threads — before waking every thread blocked in Join(p.ID).
func (t *Table) Exit(p *Process, code int) {
	if p.exited {
		return
	}
	p.exited = true
	p.ExitCode = code

	for h, ds := range p.dirStreams {
		ds.Close()
		delete(p.dirStreams, h)
	}
	for h, n := range p.nodes {
		n.Close()
		delete(p.nodes, h)
	}
	p.Stdin.Close()
	p.Stdout.Close()
	p.Stderr.Close()

	for _, r := range p.regions {
		p.load.AddressSpace.Free(vmm.PageFromAddress(r.Start), r.Pages)
	}

	for _, th := range p.threads {
		if th == p.mainThread {
			continue
		}
		th.State = sched.Terminated
	}
	p.mainThread.State = sched.Terminated

	for _, j := range p.joiners {
		sched.Schedule(j)
	}
	p.joiners = nil

	t.lock.Acquire()
	delete(t.procs, p.ID)
	t.lock.Release()

	logger.Info("%s (handle %d) exited with code %d", p.Path, p.ID, code)
}

// Join blocks the calling thread until the app identified by id exits,
// returning its exit code, or NoExitCode if no such app is running.
func (t *Table) Join(id uint16) int {
	t.lock.Acquire()
	target, ok := t.procs[id]
	t.lock.Release()
	if !ok {
		return NoExitCode
	}

	self := sched.RunningThread()
	target.joiners = append(target.joiners, self)
	self.State = sched.Waiting
	sched.ExecuteNextThread()

	return target.ExitCode
}

func readPS2Key() (row, col uint8, released, none bool) {
	k := ps2.Read()
	return k.Row, k.Col, k.Released, k.None()
}

func appName(absPath string) string {
	base := path.Base(absPath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// resolvePath joins p onto base if p is not already absolute, then cleans
// the result.
func resolvePath(base, p string) string {
	if p == "" {
		return base
	}
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	return path.Clean(path.Join(base, p))
}
