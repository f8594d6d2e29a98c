// File: core/concurrency/task_queue.go
// Package concurrency provides the lock-free task plumbing used by the
// selector loop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unbounded multi-producer/single-consumer intrusive linked queue.
// Producers are lock-free; the single consumer may briefly spin while a
// racing producer publishes its forward link.

package concurrency

import (
	"runtime"
	"sync/atomic"

	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"
)

// Task is a unit of work executed on the consumer goroutine.
type Task func()

// node carries one task. Created by a producer, consumed and discarded by
// the consumer; never shared after consumption.
type node struct {
	task Task
	next atomic.Pointer[node]
}

// TaskQueue is an unbounded lock-free MPSC queue.
//
// head is the most recently published node, tail the oldest unconsumed
// one. Nodes form a chain from tail to head. A node whose next link is
// not yet visible while head already points past it is in a transient
// publishing state; the consumer waits for the link instead of treating
// the queue as empty. Correct for exactly one consumer.
type TaskQueue struct {
	head atomic.Pointer[node]
	tail atomic.Pointer[node]

	log      *zap.Logger
	enqueued uatomic.Int64
	executed uatomic.Int64
}

// NewTaskQueue creates an empty queue. A nil logger defaults to no-op.
func NewTaskQueue(log *zap.Logger) *TaskQueue {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskQueue{log: log}
}

// Enqueue appends task. Never blocks, safe from any number of goroutines.
// Reports whether the queue transitioned from empty to non-empty, in
// which case the caller must wake the consumer.
func (q *TaskQueue) Enqueue(task Task) (wasEmpty bool) {
	n := &node{task: task}
	q.enqueued.Inc()
	prev := q.head.Swap(n)
	if prev == nil {
		// Queue was empty: the new node is also the oldest one.
		q.tail.Store(n)
		return true
	}
	// Publish the forward link. Only the consumer reads it, and the
	// consumer waits for it to become visible.
	prev.next.Store(n)
	return false
}

// DrainAndRun executes all currently queued tasks in publication order and
// returns how many ran. Must only be called by the single consumer.
// Draining an empty queue is a no-op.
func (q *TaskQueue) DrainAndRun() int {
	if q.head.Load() == nil {
		return 0
	}
	n := q.tail.Load()
	for n == nil {
		// head is set but the empty-transition producer has not yet
		// published tail.
		runtime.Gosched()
		n = q.tail.Load()
	}
	count := 0
	for {
		q.runTask(n.task)
		count++
		next := n.next.Load()
		if next == nil {
			if q.head.CompareAndSwap(n, nil) {
				// Confirmed empty. Clear tail unless a producer already
				// installed a fresh first node.
				q.tail.CompareAndSwap(n, nil)
				return count
			}
			// A producer raced in a new head; its link from n is still
			// in flight.
			for next == nil {
				runtime.Gosched()
				next = n.next.Load()
			}
		}
		n = next
		q.tail.Store(n)
	}
}

// Pending returns the number of enqueued but not yet executed tasks.
func (q *TaskQueue) Pending() int64 {
	return q.enqueued.Load() - q.executed.Load()
}

// runTask executes one task. A panic escaping the task is logged and must
// never abort the drain.
func (q *TaskQueue) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("task panicked", zap.Any("panic", r))
		}
		q.executed.Inc()
	}()
	task()
}
