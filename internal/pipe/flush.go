package pipe

import (
	"time"

	"github.com/wine-np/npserver/internal/async"
	"github.com/wine-np/npserver/internal/hostfd"
	"github.com/wine-np/npserver/internal/status"
)

// Flush implements FlushFileBuffers for a pipe end: it completes once
// everything this end has written has been consumed by its peer. Neither
// host primitive this subsystem is built on exposes a "drained" event —
// a Unix socket can only be polled for unread bytes, and the in-server
// message queue has no equivalent either — so both modes complete it the
// same way named_pipe.c's check_flushed does for byte mode: poll on a
// fixed cadence until the peer has caught up (spec.md §4.4, §9).
func (d *Device) Flush(handle uint64) (*async.Async, status.Status) {
	d.mu.Lock()
	e, st := d.endFor(handle)
	if st != status.Success {
		d.mu.Unlock()
		return nil, st
	}

	iosb := &async.IOSB{}
	a := async.New(iosb, true)

	if d.isFlushed(e) {
		d.mu.Unlock()
		a.Terminate(status.Success)
		return a, status.Success
	}
	d.mu.Unlock()

	d.pollFlush(handle, a)
	return a, status.Success
}

// isFlushed reports whether e's peer has nothing left of e's writes to
// consume. Must be called with d.mu held.
func (d *Device) isFlushed(e *end) bool {
	peer := e.connection
	if peer == nil {
		return true
	}
	if e.useServerIO() {
		return len(peer.msgQueue) == 0
	}
	return !hostfd.Pending(peer.fd)
}

func (d *Device) pollFlush(handle uint64, a *async.Async) {
	ticker := time.NewTicker(flushPollInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-a.Done():
				return
			case <-ticker.C:
				d.mu.Lock()
				e, st := d.endFor(handle)
				if st != status.Success {
					d.mu.Unlock()
					a.Terminate(st)
					return
				}
				flushed := d.isFlushed(e)
				d.mu.Unlock()
				if flushed {
					a.Terminate(status.Success)
					return
				}
			}
		}
	}()
}
