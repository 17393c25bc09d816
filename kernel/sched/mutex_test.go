package sched

import "testing"

func TestMutexLockUncontendedGrantsImmediately(t *testing.T) {
	resetScheduler(t)

	owner := &Thread{ID: 1}
	Init(owner)

	m := NewMutex(1, "test")
	m.Lock()

	if m.Owner() != owner {
		t.Fatalf("expected owner %v; got %v", owner, m.Owner())
	}
	if owner.MutexIDHeld != m.Handle {
		t.Fatalf("expected owner.MutexIDHeld = %d; got %d", m.Handle, owner.MutexIDHeld)
	}
}

func TestMutexLockReentrantOwnerDoesNotBlock(t *testing.T) {
	resetScheduler(t)

	owner := &Thread{ID: 1}
	Init(owner)

	m := NewMutex(1, "test")
	m.Lock()
	m.Lock() // re-entering; must not queue itself

	if len(m.WaitingThreads()) != 0 {
		t.Fatalf("expected no waiters when the owner re-enters; got %v", m.WaitingThreads())
	}
	if owner.State != Running {
		t.Fatalf("expected the owner to remain Running; got %v", owner.State)
	}
}

func TestMutexLockContendedQueuesAndSwitches(t *testing.T) {
	resetScheduler(t)

	owner := &Thread{ID: 1}
	Init(owner)

	m := NewMutex(1, "test")
	m.Lock() // owner acquires

	waiter := &Thread{ID: 2}
	other := &Thread{ID: 3}
	Schedule(other) // another ready thread, so ExecuteNextThread has somewhere to go

	var switched bool
	contextSwitchFn = func(prev, next *Thread) { switched = true }

	// Simulate the waiter itself calling Lock by making it the running thread.
	running = waiter
	m.Lock()

	if m.Owner() != owner {
		t.Fatalf("expected owner to remain %v while waiter blocks; got %v", owner, m.Owner())
	}
	if waiter.State != Waiting {
		t.Fatalf("expected waiter to transition to Waiting; got %v", waiter.State)
	}
	got := m.WaitingThreads()
	if len(got) != 1 || got[0] != waiter {
		t.Fatalf("expected waiter to be queued; got %v", got)
	}
	if !switched {
		t.Fatal("expected Lock to context switch away from the blocked waiter")
	}
}

func TestMutexUnlockTransfersOwnershipToWaiter(t *testing.T) {
	resetScheduler(t)

	owner := &Thread{ID: 1}
	Init(owner)

	m := NewMutex(1, "test")
	m.Lock()

	waiter := &Thread{ID: 2}
	running = waiter
	m.Lock() // waiter blocks

	running = owner
	m.Unlock()

	if m.Owner() != waiter {
		t.Fatalf("expected ownership to transfer to the waiter; got %v", m.Owner())
	}
	if waiter.MutexIDHeld != m.Handle {
		t.Fatalf("expected waiter.MutexIDHeld = %d; got %d", m.Handle, waiter.MutexIDHeld)
	}
	if len(m.WaitingThreads()) != 0 {
		t.Fatalf("expected the wait queue to drain; got %v", m.WaitingThreads())
	}
}

func TestMutexUnlockByNonOwnerIsNoop(t *testing.T) {
	resetScheduler(t)

	owner := &Thread{ID: 1}
	Init(owner)

	m := NewMutex(1, "test")
	m.Lock()

	intruder := &Thread{ID: 2}
	running = intruder
	m.Unlock()

	if m.Owner() != owner {
		t.Fatalf("expected owner to remain %v; got %v", owner, m.Owner())
	}
}

func TestMutexUnlockWithNoWaitersClearsOwner(t *testing.T) {
	resetScheduler(t)

	owner := &Thread{ID: 1}
	Init(owner)

	m := NewMutex(1, "test")
	m.Lock()
	m.Unlock()

	if m.Owner() != nil {
		t.Fatalf("expected no owner after unlocking an uncontended mutex; got %v", m.Owner())
	}
}

func TestMutexRemoveWaitingThreadOwner(t *testing.T) {
	resetScheduler(t)

	owner := &Thread{ID: 1}
	Init(owner)

	m := NewMutex(1, "test")
	m.Lock()

	waiter := &Thread{ID: 2}
	running = waiter
	m.Lock()

	if !m.RemoveWaitingThread(owner.ID) {
		t.Fatal("expected RemoveWaitingThread to find the owner")
	}
	if m.Owner() != waiter {
		t.Fatalf("expected ownership to transfer to the waiter; got %v", m.Owner())
	}
}

func TestMutexRemoveWaitingThreadWaiter(t *testing.T) {
	resetScheduler(t)

	owner := &Thread{ID: 1}
	Init(owner)

	m := NewMutex(1, "test")
	m.Lock()

	waiter := &Thread{ID: 2}
	running = waiter
	m.Lock()

	running = owner
	if !m.RemoveWaitingThread(waiter.ID) {
		t.Fatal("expected RemoveWaitingThread to find the waiter")
	}
	if len(m.WaitingThreads()) != 0 {
		t.Fatalf("expected the waiter to be removed; got %v", m.WaitingThreads())
	}
	if m.Owner() != owner {
		t.Fatalf("expected owner to remain %v; got %v", owner, m.Owner())
	}
}

func TestMutexRemoveWaitingThreadUnknownIDFails(t *testing.T) {
	resetScheduler(t)

	owner := &Thread{ID: 1}
	Init(owner)

	m := NewMutex(1, "test")
	m.Lock()

	if m.RemoveWaitingThread(99) {
		t.Fatal("expected RemoveWaitingThread to fail for an unrelated ID")
	}
}
