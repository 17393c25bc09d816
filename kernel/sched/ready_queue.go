package sched

// readyQueueNode links a Thread into the ReadyQueue's priority-ordered list.
type readyQueueNode struct {
	thread *Thread
	next   *readyQueueNode
}

// ReadyQueue is a priority-ordered multiset of Ready threads; ties within a
// priority are broken FIFO.
type ReadyQueue struct {
	head *readyQueueNode
}

// Peek returns the current head of the queue (the next thread to run), or
// nil if the queue is empty.
func (q *ReadyQueue) Peek() *Thread {
	if q.head == nil {
		return nil
	}
	return q.head.thread
}

// Schedule inserts t, keeping the list ordered by descending Priority with
// FIFO order preserved among threads of equal priority.
func (q *ReadyQueue) Schedule(t *Thread) {
	node := &readyQueueNode{thread: t}

	if q.head == nil || t.Priority > q.head.thread.Priority {
		node.next = q.head
		q.head = node
		return
	}

	c := q.head
	for c.next != nil && c.next.thread.Priority >= t.Priority {
		c = c.next
	}
	node.next = c.next
	c.next = node
}

// dequeueHead removes and returns the current head, or nil if empty.
func (q *ReadyQueue) dequeueHead() *Thread {
	if q.head == nil {
		return nil
	}
	t := q.head.thread
	q.head = q.head.next
	return t
}

// Len returns the number of threads currently queued.
func (q *ReadyQueue) Len() int {
	n := 0
	for c := q.head; c != nil; c = c.next {
		n++
	}
	return n
}
