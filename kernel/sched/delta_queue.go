package sched

// deltaQueueNode holds a sleeping thread and its wake time relative to the
// node before it, per the delta-queue encoding: only the head's wake time
// is absolute (from "now"); every other node's wake time is the additional
// delay after the node preceding it fires.
type deltaQueueNode struct {
	thread   *Thread
	wakeTime uint64
	prev     *deltaQueueNode
	next     *deltaQueueNode
}

// DeltaQueue orders sleeping threads by absolute wake time using
// delta-encoded relative offsets, so a tick only has to touch the head node.
type DeltaQueue struct {
	first *deltaQueueNode
	last  *deltaQueueNode
}

// SleepingThread pairs a thread with its absolute wake time, for reporting.
type SleepingThread struct {
	Thread   *Thread
	WakeTime uint64
}

// First returns the thread at the head of the queue (the next to wake), or
// nil if the queue is empty.
func (q *DeltaQueue) First() *Thread {
	if q.first == nil {
		return nil
	}
	return q.first.thread
}

// UpdateWakeTime decrements the head node's relative wake time by
// timeDecrement. Called once per timer tick before Dequeue.
func (q *DeltaQueue) UpdateWakeTime(timeDecrement uint64) {
	if q.first != nil {
		q.first.wakeTime -= timeDecrement
	}
}

// Enqueue links thread into the queue so it wakes after wakeTime (relative
// to now), splitting its delay across the existing nodes it is inserted
// between and pushing the remainder onto whatever already followed.
func (q *DeltaQueue) Enqueue(thread *Thread, wakeTime uint64) {
	if thread == nil {
		return
	}

	node := &deltaQueueNode{thread: thread, wakeTime: wakeTime}
	if q.first == nil {
		q.first, q.last = node, node
		return
	}

	for c := q.first; c != nil; c = c.next {
		if node.wakeTime >= c.wakeTime {
			node.wakeTime -= c.wakeTime
			continue
		}

		if c.prev == nil {
			c.prev = node
			node.next = q.first
			q.first = node
		} else {
			c.prev.next = node
			node.prev = c.prev
			c.prev = node
			node.next = c
		}
		for cc := node.next; cc != nil; cc = cc.next {
			cc.wakeTime -= node.wakeTime
		}
		return
	}

	q.last.next = node
	node.prev = q.last
	q.last = node
}

// Dequeue removes and returns the head thread if its relative wake time has
// reached zero, or nil otherwise (nothing is due yet, or the queue is
// empty). Call it in a loop after UpdateWakeTime to drain every thread due
// on this tick.
func (q *DeltaQueue) Dequeue() *Thread {
	if q.first == nil || q.first.wakeTime != 0 {
		return nil
	}

	f := q.first
	q.first = q.first.next
	if q.first == nil {
		q.last = nil
	} else {
		q.first.prev = nil
	}
	t := f.thread
	f.thread, f.prev, f.next = nil, nil, nil
	return t
}

// RemoveWaitingThread removes the node carrying the thread with the given
// ID, folding its remaining delay into the following node so the rest of
// the chain's absolute wake times are unaffected. Used by the process-exit
// path to drop a dying thread's delta-queue membership.
func (q *DeltaQueue) RemoveWaitingThread(id uint16) bool {
	for c := q.first; c != nil; c = c.next {
		if c.thread.ID != id {
			continue
		}

		if c.next != nil {
			c.next.wakeTime += c.wakeTime
			c.next.prev = c.prev
		} else {
			q.last = c.prev
		}
		if c.prev != nil {
			c.prev.next = c.next
		} else {
			q.first = c.next
		}
		c.prev, c.next, c.wakeTime, c.thread = nil, nil, 0, nil
		return true
	}
	return false
}

// Sleeping returns every thread currently in the queue along with its
// absolute wake time, for diagnostics.
func (q *DeltaQueue) Sleeping() []SleepingThread {
	var out []SleepingThread
	absolute := uint64(0)
	for c := q.first; c != nil; c = c.next {
		absolute += c.wakeTime
		out = append(out, SleepingThread{Thread: c.thread, WakeTime: absolute})
	}
	return out
}
