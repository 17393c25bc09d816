package syscall

import (
	"github.com/Ewogijk/runeOS-sub002/kernel/mem"
	"github.com/Ewogijk/runeOS-sub002/kernel/sched"
)

func threadingMutexCreate(ctx *Context, a1, mutexName, nameSize, a4, a5, a6 uint64) int64 {
	name := ""
	if mutexName != 0 {
		s, ok := CopyStringUserToKernel(uintptr(mutexName), int(nameSize))
		if !ok {
			return int64(StatusBadArg)
		}
		name = s
	}

	ctx.nextMutexID++
	id := ctx.nextMutexID
	ctx.mutexes[id] = sched.NewMutex(id, name)
	return int64(id)
}

func threadingMutexLock(ctx *Context, id, a2, a3, a4, a5, a6 uint64) int64 {
	if id == 0 {
		return int64(StatusBadArg)
	}
	m, ok := ctx.mutexes[uint32(id)]
	if !ok {
		return int64(StatusUnknownID)
	}
	m.Lock()
	return int64(StatusOkay)
}

func threadingMutexUnlock(ctx *Context, id, a2, a3, a4, a5, a6 uint64) int64 {
	if id == 0 {
		return int64(StatusBadArg)
	}
	m, ok := ctx.mutexes[uint32(id)]
	if !ok {
		return int64(StatusUnknownID)
	}
	m.Unlock()
	return int64(StatusOkay)
}

// threadingMutexRelease frees a mutex's bookkeeping entirely. A mutex still
// held or still waited on cannot be released out from under its owner.
func threadingMutexRelease(ctx *Context, id, a2, a3, a4, a5, a6 uint64) int64 {
	if id == 0 {
		return int64(StatusBadArg)
	}
	m, ok := ctx.mutexes[uint32(id)]
	if !ok {
		return int64(StatusUnknownID)
	}
	if m.Owner() != nil || len(m.WaitingThreads()) > 0 {
		return int64(StatusFault)
	}
	delete(ctx.mutexes, uint32(id))
	return int64(StatusOkay)
}

func threadingGetThreadID(ctx *Context, a1, a2, a3, a4, a5, a6 uint64) int64 {
	return int64(sched.RunningThread().ID)
}

// threadingSetThreadControlBlock records a user-mode pointer on the
// calling thread for it to recover later (typically its thread-local
// storage base); the kernel never dereferences it.
func threadingSetThreadControlBlock(ctx *Context, tcb, a2, a3, a4, a5, a6 uint64) int64 {
	if tcb == 0 || tcb >= uint64(mem.UserSpaceEnd) {
		return int64(StatusBadArg)
	}
	sched.RunningThread().ControlBlock = uintptr(tcb)
	return int64(StatusOkay)
}
