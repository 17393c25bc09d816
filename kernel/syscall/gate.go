package syscall

import (
	"github.com/Ewogijk/runeOS-sub002/kernel/app"
	"github.com/Ewogijk/runeOS-sub002/kernel/log"
	"github.com/Ewogijk/runeOS-sub002/kernel/sched"
	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

var logger = log.New("syscall")

// Context is the state every installed handler reaches through: the running
// process table, the mount table, and the table of mutexes created via the
// threading system calls.
type Context struct {
	Apps   *app.Table
	Mounts *vfs.MountTable

	nextMutexID uint32
	mutexes     map[uint32]*sched.Mutex
}

// NewContext returns a Context ready to have handlers dispatched through
// it.
func NewContext(apps *app.Table, mounts *vfs.MountTable) *Context {
	return &Context{
		Apps:    apps,
		Mounts:  mounts,
		mutexes: make(map[uint32]*sched.Mutex),
	}
}

// HandlerFunc is one installed system call: it receives the gate context
// and the six raw argument registers, and returns the signed status the
// caller sees in its return register.
type HandlerFunc func(ctx *Context, a1, a2, a3, a4, a5, a6 uint64) int64

// table is the closed set of installed system calls, keyed by ID. It is
// never modified after init, mirroring the fixed bundle of native system
// calls the boot sequence installs once and never changes afterward.
var table = map[uint16]HandlerFunc{
	MemoryGetPageSize:  memoryGetPageSize,
	MemoryAllocatePage: memoryAllocatePage,
	MemoryFreePage:     memoryFreePage,

	ThreadingMutexCreate:           threadingMutexCreate,
	ThreadingMutexLock:             threadingMutexLock,
	ThreadingMutexUnlock:           threadingMutexUnlock,
	ThreadingMutexRelease:          threadingMutexRelease,
	ThreadingGetThreadID:           threadingGetThreadID,
	ThreadingSetThreadControlBlock: threadingSetThreadControlBlock,

	VFSGetNodeInfo:          vfsGetNodeInfo,
	VFSCreate:               vfsCreate,
	VFSOpen:                 vfsOpen,
	VFSDelete:               vfsDelete,
	VFSClose:                vfsClose,
	VFSRead:                 vfsRead,
	VFSWrite:                vfsWrite,
	VFSSeek:                 vfsSeek,
	VFSDirectoryStreamOpen:  vfsDirectoryStreamOpen,
	VFSDirectoryStreamNext:  vfsDirectoryStreamNext,
	VFSDirectoryStreamClose: vfsDirectoryStreamClose,

	AppReadStdIn:              appReadStdIn,
	AppWriteStdOut:            appWriteStdOut,
	AppWriteStdErr:            appWriteStdErr,
	AppStart:                  appStart,
	AppExit:                   appExit,
	AppJoin:                   appJoin,
	AppGetWorkingDirectory:    appGetWorkingDirectory,
	AppChangeWorkingDirectory: appChangeWorkingDirectory,
}

// runningProcess resolves the app the currently scheduled thread belongs
// to. A system call running with no owning process (the idle thread,
// before any app has been started) has nothing meaningful to act on.
func runningProcess(ctx *Context) *app.Process {
	t := sched.RunningThread()
	if t == nil {
		return nil
	}
	return ctx.Apps.Get(uint16(t.OwningAppID))
}

// Dispatch looks up id in the installed table and invokes it with the six
// argument registers, returning StatusBadArg for an unknown ID instead of
// panicking — a user-mode program naming a bad ID must never be able to
// bring the kernel down.
func Dispatch(ctx *Context, id uint16, a1, a2, a3, a4, a5, a6 uint64) int64 {
	h, ok := table[id]
	if !ok {
		logger.Warn("rejected unknown system call %d", id)
		return int64(StatusBadArg)
	}
	return h(ctx, a1, a2, a3, a4, a5, a6)
}
