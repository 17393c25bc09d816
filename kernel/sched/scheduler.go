package sched

import "github.com/Ewogijk/runeOS-sub002/kernel/sync"

var (
	lockDepth int
	running   *Thread
	ready     ReadyQueue
	delta     DeltaQueue

	// contextSwitchFn performs the arch-specific register save/restore; it
	// is mocked by tests and automatically inlined by the compiler.
	contextSwitchFn = contextSwitch

	schedulerLock sync.Spinlock
)

// Init seeds the scheduler with the thread that is already running (the
// kernel's idle thread) before any interrupt can fire.
func Init(idle *Thread) {
	idle.State = Running
	running = idle
}

// Lock increments the nesting depth, inhibiting preemption while any lock
// is held. Nestable: callers must pair every Lock with an Unlock.
func Lock() {
	schedulerLock.Acquire()
	lockDepth++
	schedulerLock.Release()
}

// Unlock decrements the nesting depth; preemption resumes once it reaches
// zero.
func Unlock() {
	schedulerLock.Acquire()
	if lockDepth > 0 {
		lockDepth--
	}
	schedulerLock.Release()
}

// Locked reports whether the scheduler is currently locked against
// preemption, i.e. whether any Lock call is still unmatched by Unlock.
func Locked() bool {
	return lockDepth > 0
}

// PreemptionAllowed reports whether the only outstanding Lock is the timer
// tick's own: depth of 1 means nothing outside the interrupt handler holds
// the scheduler, so it is safe to end the current thread's quantum here.
// A depth greater than 1 means some other code (e.g. a Mutex operation the
// tick interrupted) is mid-update and must not be preempted out from under.
func PreemptionAllowed() bool {
	return lockDepth <= 1
}

// Schedule transitions t to Ready and inserts it into the ready queue.
func Schedule(t *Thread) {
	t.State = Ready
	ready.Schedule(t)
}

// RunningThread returns the thread currently executing on this CPU.
func RunningThread() *Thread {
	return running
}

// GetReadyQueue returns the scheduler's ready queue.
func GetReadyQueue() *ReadyQueue {
	return &ready
}

// GetDeltaQueue returns the scheduler's queue of sleeping threads.
func GetDeltaQueue() *DeltaQueue {
	return &delta
}

// ExecuteNextThread context-switches to the ready queue's head, first
// pushing the previously running thread back onto the ready queue if it is
// still runnable (a thread that called this while transitioning to Waiting,
// Sleeping or Terminated has already updated its own State beforehand).
func ExecuteNextThread() {
	next := ready.dequeueHead()
	if next == nil {
		return
	}

	prev := running
	if prev != nil && prev.State == Running {
		prev.State = Ready
		ready.Schedule(prev)
	}

	running = next
	running.State = Running
	contextSwitchFn(prev, running)
}
