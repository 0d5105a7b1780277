package pipe

import (
	"time"

	"github.com/wine-np/npserver/internal/async"
	"github.com/wine-np/npserver/internal/status"
)

// Wait implements WaitNamedPipe (FSCTL_PIPE_WAIT, spec.md §4.3/§6): block
// until some server instance of name is available to OpenFile, or timeout
// elapses. A server in wait_open or idle_server (the same rule
// findAvailableServer applies for OpenFile) completes it at once;
// otherwise it joins NamedPipe.waiters, which Listen wakes whenever a
// server moves into wait_open.
func (d *Device) Wait(name string, timeout time.Duration) (*async.Async, status.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.namespace.Lookup(name)
	if !ok {
		return nil, status.ObjectNameInvalid
	}
	np := obj.(*NamedPipe)

	iosb := &async.IOSB{}
	a := async.New(iosb, true)

	if findAvailableServer(np) != nil {
		a.Terminate(status.Success)
		return a, status.Success
	}

	np.waiters.Enqueue(a)
	if timeout > 0 {
		a.SetTimeout(timeout, status.IoTimeout)
	}
	return a, status.Success
}
