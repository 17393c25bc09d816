package sched

// Mutex is a blocking lock with ownership transfer: unlocking hands the
// mutex directly to the head of its wait queue instead of waking every
// waiter to race for it.
type Mutex struct {
	Handle uint32
	Name   string

	owner     *Thread
	waitQueue []*Thread
}

// NewMutex returns a Mutex identified by handle, with name for diagnostics.
func NewMutex(handle uint32, name string) *Mutex {
	return &Mutex{Handle: handle, Name: name}
}

// Owner returns the thread currently holding the mutex, or nil if unheld.
func (m *Mutex) Owner() *Thread {
	return m.owner
}

// WaitingThreads returns a snapshot of the threads blocked on this mutex,
// in the order they will be granted ownership.
func (m *Mutex) WaitingThreads() []*Thread {
	cp := make([]*Thread, len(m.waitQueue))
	copy(cp, m.waitQueue)
	return cp
}

// Lock grants ownership immediately if the mutex is unowned, or if the
// calling thread already owns it (recursive locking is allowed). Otherwise
// the calling thread is appended to the wait queue, transitions to Waiting,
// and the scheduler switches to the next ready thread.
func (m *Mutex) Lock() {
	Lock()
	defer Unlock()

	t := RunningThread()
	t.MutexIDHeld = m.Handle

	if m.owner == nil {
		m.owner = t
		return
	}

	if t.ID != m.owner.ID {
		m.waitQueue = append(m.waitQueue, t)
		t.State = Waiting
		ExecuteNextThread()
	}
	// else: the owner is re-entering; nothing further to do.
}

// Unlock transfers ownership to the head of the wait queue (making it
// Ready) or, if nobody is waiting, clears the owner. Only the current
// owner's call has any effect. If the newly granted thread is now the
// ready-queue head it runs immediately.
func (m *Mutex) Unlock() {
	Lock()
	defer Unlock()

	if m.owner == nil {
		return
	}
	if RunningThread().ID != m.owner.ID {
		return
	}

	granted := m.transferOwnership()
	if granted != nil && GetReadyQueue().Peek() == granted {
		ExecuteNextThread()
	}
}

// transferOwnership hands the mutex to the next waiter (if any) and returns
// it, or clears the owner and returns nil.
func (m *Mutex) transferOwnership() *Thread {
	m.owner.MutexIDHeld = 0

	if len(m.waitQueue) == 0 {
		m.owner = nil
		return nil
	}

	next := m.waitQueue[0]
	m.waitQueue = m.waitQueue[1:]
	m.owner = next
	next.MutexIDHeld = m.Handle
	Schedule(next)
	return next
}

// RemoveWaitingThread drops the thread with the given ID from this mutex's
// involvement: if it is the owner, ownership transfers as if it had called
// Unlock; if it is a waiter, it is simply removed from the wait queue. It
// is called by the process-exit path so a dying thread releases every
// mutex it touches.
func (m *Mutex) RemoveWaitingThread(id uint16) bool {
	Lock()
	defer Unlock()

	if m.owner == nil {
		return false
	}

	if m.owner.ID == id {
		m.transferOwnership()
		return true
	}

	for i, w := range m.waitQueue {
		if w.ID == id {
			m.waitQueue = append(m.waitQueue[:i], m.waitQueue[i+1:]...)
			return true
		}
	}
	return false
}
