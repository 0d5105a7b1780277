// Package async implements the suspended-caller primitive the named-pipe
// core suspends on: an I/O status block shared between a caller and the
// subsystem, and a queue that holds pending asyncs until something makes
// them completable again. It is the Go-idiomatic replacement for
// spec.md's "re-architect with an explicit future/continuation type that
// the host completes" note: the subsystem itself stays single-threaded
// (see pipe.Device's actor loop), but callers live on their own
// goroutines and block on Async.Done() instead of being literally
// descheduled by a cooperative kernel.
package async

import (
	"sync"
	"time"

	"github.com/wine-np/npserver/internal/status"
)

// IOSB is the shared I/O status block exchanged between a caller and the
// subsystem: the request's input buffer, the room available for a reply,
// and — once completed — the result.
type IOSB struct {
	InData  []byte
	OutSize int
	OutData []byte
	Status  status.Status
	Result  int
}

// Async represents one suspended caller. It is created with status Pending
// and is completed exactly once, either by Terminate (explicit status) or
// by a timeout firing.
type Async struct {
	mu       sync.Mutex
	iosb     *IOSB
	done     chan struct{}
	blocking bool
	timer    *time.Timer
}

// New creates a pending async wrapping iosb. blocking controls whether the
// RPC caller is willing to wait (an overlapped/non-blocking caller instead
// gets told to poll); the core itself treats both the same way.
func New(iosb *IOSB, blocking bool) *Async {
	iosb.Status = status.Pending
	return &Async{iosb: iosb, done: make(chan struct{}), blocking: blocking}
}

// IOSB returns the async's I/O status block.
func (a *Async) IOSB() *IOSB { return a.iosb }

// IsBlocking reports whether the caller registered interest in waiting for
// completion rather than polling.
func (a *Async) IsBlocking() bool { return a.blocking }

// Done is closed exactly once, when the async completes.
func (a *Async) Done() <-chan struct{} { return a.done }

// Pending reports whether the async has not yet completed.
func (a *Async) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.iosb.Status == status.Pending
}

// Terminate completes the async with st if it has not already completed.
// It is idempotent: terminating an already-completed async is a no-op,
// mirroring async_terminate's guard in the original server.
func (a *Async) Terminate(st status.Status) {
	a.mu.Lock()
	if a.iosb.Status != status.Pending {
		a.mu.Unlock()
		return
	}
	a.iosb.Status = st
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	close(a.done)
}

// SetTimeout arranges for the async to be terminated with st after d, unless
// it completes first. Passing a non-positive d cancels any existing timer.
func (a *Async) SetTimeout(d time.Duration, st status.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if d <= 0 {
		return
	}
	a.timer = time.AfterFunc(d, func() { a.Terminate(st) })
}

// Queue is the thin contract the pipe core consumes from the host's async
// primitive: FIFO enqueue, wake one or all pending entries with a status,
// and removal by reference for cancellation.
type Queue struct {
	mu      sync.Mutex
	pending []*Async
}

// NewQueue returns an empty async queue.
func NewQueue() *Queue { return &Queue{} }

// Enqueue appends a to the tail of the queue.
func (q *Queue) Enqueue(a *Async) {
	q.mu.Lock()
	q.pending = append(q.pending, a)
	q.mu.Unlock()
}

// Remove drops a from the queue without completing it.
func (q *Queue) Remove(a *Async) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p == a {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// PopPending removes and returns the head of the queue whose async is
// still pending, skipping (and dropping) any that already completed out of
// band. It returns nil if no pending async remains.
func (q *Queue) PopPending() *Async {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) > 0 {
		a := q.pending[0]
		q.pending = q.pending[1:]
		if a.Pending() {
			return a
		}
	}
	return nil
}

// WakeOne terminates the oldest pending async in the queue with st. It
// reports whether an async was found.
func (q *Queue) WakeOne(st status.Status) bool {
	a := q.PopPending()
	if a == nil {
		return false
	}
	a.Terminate(st)
	return true
}

// WakeAll terminates every pending async currently in the queue with st.
func (q *Queue) WakeAll(st status.Status) {
	q.mu.Lock()
	all := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, a := range all {
		a.Terminate(st)
	}
}

// Len reports the number of asyncs currently queued, used by tests
// asserting invariant 4/5 from spec.md §8.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
