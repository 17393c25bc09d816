package sched

import "testing"

func TestReadyQueuePeekEmpty(t *testing.T) {
	var q ReadyQueue
	if got := q.Peek(); got != nil {
		t.Fatalf("expected nil from an empty queue; got %v", got)
	}
}

func TestReadyQueueOrdersByPriorityThenFIFO(t *testing.T) {
	var q ReadyQueue

	low1 := &Thread{ID: 1, Priority: Low}
	normal1 := &Thread{ID: 2, Priority: Normal}
	normal2 := &Thread{ID: 3, Priority: Normal}
	high1 := &Thread{ID: 4, Priority: High}

	q.Schedule(low1)
	q.Schedule(normal1)
	q.Schedule(high1)
	q.Schedule(normal2)

	exp := []*Thread{high1, normal1, normal2, low1}
	for i, want := range exp {
		got := q.dequeueHead()
		if got != want {
			t.Fatalf("[pop %d] expected thread %d; got %v", i, want.ID, got)
		}
	}
	if q.Peek() != nil {
		t.Fatal("expected queue to be empty after draining every thread")
	}
}

func TestReadyQueueLen(t *testing.T) {
	var q ReadyQueue
	q.Schedule(&Thread{ID: 1})
	q.Schedule(&Thread{ID: 2})
	if exp := 2; q.Len() != exp {
		t.Fatalf("expected length %d; got %d", exp, q.Len())
	}
}
