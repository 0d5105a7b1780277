package async

import (
	"testing"
	"time"

	"github.com/wine-np/npserver/internal/status"
)

func TestTerminateIsIdempotent(t *testing.T) {
	a := New(&IOSB{}, true)
	a.Terminate(status.Success)
	a.Terminate(status.PipeBroken)

	select {
	case <-a.Done():
	default:
		t.Fatal("expected Done to be closed after Terminate")
	}
	if got := a.IOSB().Status; got != status.Success {
		t.Fatalf("second Terminate should be a no-op, got status %v", got)
	}
}

func TestSetTimeoutFires(t *testing.T) {
	a := New(&IOSB{}, true)
	a.SetTimeout(5*time.Millisecond, status.IoTimeout)

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SetTimeout to terminate the async")
	}
	if got := a.IOSB().Status; got != status.IoTimeout {
		t.Fatalf("expected IoTimeout, got %v", got)
	}
}

func TestSetTimeoutCancelledByEarlierTerminate(t *testing.T) {
	a := New(&IOSB{}, true)
	a.SetTimeout(50*time.Millisecond, status.IoTimeout)
	a.Terminate(status.Success)

	time.Sleep(75 * time.Millisecond)
	if got := a.IOSB().Status; got != status.Success {
		t.Fatalf("expected the explicit Terminate to win, got %v", got)
	}
}

func TestQueueWakeOneIsFIFO(t *testing.T) {
	q := NewQueue()
	a1 := New(&IOSB{}, true)
	a2 := New(&IOSB{}, true)
	q.Enqueue(a1)
	q.Enqueue(a2)

	if !q.WakeOne(status.Alerted) {
		t.Fatal("expected WakeOne to find a pending async")
	}
	if a1.IOSB().Status != status.Alerted {
		t.Fatal("expected the first-enqueued async to be woken first")
	}
	if a2.Pending() != true {
		t.Fatal("expected the second async to remain pending")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 remaining pending async, got %d", q.Len())
	}
}

func TestQueueSkipsAlreadyCompletedEntries(t *testing.T) {
	q := NewQueue()
	a1 := New(&IOSB{}, true)
	a2 := New(&IOSB{}, true)
	q.Enqueue(a1)
	q.Enqueue(a2)

	a1.Terminate(status.PipeDisconnected) // completed out of band, e.g. by a timeout

	if !q.WakeOne(status.Alerted) {
		t.Fatal("expected WakeOne to skip the completed entry and wake a2")
	}
	if a2.IOSB().Status != status.Alerted {
		t.Fatal("expected a2 to be the one woken")
	}
}

func TestQueueWakeAll(t *testing.T) {
	q := NewQueue()
	asyncs := make([]*Async, 3)
	for i := range asyncs {
		asyncs[i] = New(&IOSB{}, true)
		q.Enqueue(asyncs[i])
	}

	q.WakeAll(status.PipeBroken)

	for i, a := range asyncs {
		if a.IOSB().Status != status.PipeBroken {
			t.Fatalf("async %d not woken", i)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected an empty queue after WakeAll, got %d", q.Len())
	}
}

func TestRemove(t *testing.T) {
	q := NewQueue()
	a := New(&IOSB{}, true)
	q.Enqueue(a)
	q.Remove(a)

	if q.Len() != 0 {
		t.Fatal("expected Remove to drop the async from the queue")
	}
	if !a.Pending() {
		t.Fatal("Remove should not itself complete the async")
	}
}
