package pipe

import (
	"github.com/wine-np/npserver/internal/async"
	"github.com/wine-np/npserver/internal/hostfd"
	"github.com/wine-np/npserver/internal/status"
)

// Write implements both NtWriteFile paths named_pipe.c dispatches through
// pipe_end_write for (spec.md §4.4). Byte-mode pipes hand the payload
// straight to the paired host socket — Go's blocking os.File read/write
// already gives a synchronous caller the suspend-and-resume behavior the
// original gets from its async/fd_queue machinery, so a synchronous
// handle's write finishes inline and comes back as an already-completed
// Async; an overlapped handle's write always runs on its own goroutine,
// which completes the Async. Message-mode pipes have no host buffer at
// all: a write is only "done" once a reader has consumed it, so it always
// goes through the message queue and its own async.
func (d *Device) Write(handle uint64, data []byte) (*async.Async, status.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, st := d.endFor(handle)
	if st != status.Success {
		return nil, st
	}
	if e.connection == nil {
		return nil, status.PipeDisconnected
	}

	if e.useServerIO() {
		return d.writeMessage(e, data)
	}
	return d.writeBytes(e, data)
}

// writeMessage appends data as a new message on the peer's read queue and
// reselects it, so a reader already blocked on empty input completes
// immediately instead of waiting for the next Read call.
func (d *Device) writeMessage(e *end, data []byte) (*async.Async, status.Status) {
	peer := e.connection
	iosb := &async.IOSB{InData: data}
	a := async.New(iosb, true)
	peer.msgQueue = append(peer.msgQueue, &Message{iosb: iosb, writer: a})
	d.reselectReadQueue(peer)
	d.metrics.SetQueueDepth(peer.pipeName, peer.side, len(peer.msgQueue))
	return a, status.Success
}

func (d *Device) writeBytes(e *end, data []byte) (*async.Async, status.Status) {
	overlapped := e.fd.Overlapped()

	iosb := &async.IOSB{InData: data}
	if !overlapped {
		n, err := e.fd.Write(data)
		iosb.Result = n
		iosb.Status = resultStatus(err)
		a := async.New(iosb, true)
		a.Terminate(iosb.Status)
		return a, status.Success
	}

	a := async.New(iosb, false)
	fd := e.fd
	go func() {
		n, err := fd.Write(data)
		iosb.Result = n
		a.Terminate(resultStatus(err))
	}()
	return a, status.Success
}

// Read implements NtReadFile. See Write for the byte-mode/message-mode
// split.
func (d *Device) Read(handle uint64, maxSize int, blocking bool) (*async.Async, status.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, st := d.endFor(handle)
	if st != status.Success {
		return nil, st
	}

	if e.useServerIO() {
		return d.readMessage(e, maxSize, blocking)
	}
	return d.readBytes(e, maxSize, blocking)
}

// readMessage implements message_queue_read's two paths (spec.md §4.4):
// data already queued completes synchronously; an empty queue on a
// connected pipe suspends the caller in readQ until writeMessage reselects
// it, and an empty queue on a disconnected pipe fails outright.
func (d *Device) readMessage(e *end, maxSize int, blocking bool) (*async.Async, status.Status) {
	if len(e.msgQueue) > 0 {
		iosb := &async.IOSB{}
		d.consumeMessage(e, iosb, maxSize)
		a := async.New(iosb, blocking)
		a.Terminate(iosb.Status)
		return a, status.Success
	}

	if e.connection == nil {
		return nil, status.PipeDisconnected
	}
	if !blocking {
		return nil, status.NoDataDetected
	}

	iosb := &async.IOSB{OutSize: maxSize}
	a := async.New(iosb, true)
	e.readQ.Enqueue(a)
	return a, status.Success
}

// consumeMessage fills iosb from e's message queue, dispatching to the
// message-stream-read or byte-stream-read path per spec.md §4.4 depending
// on whether the reading end was opened with FlagMessageStreamRead.
func (d *Device) consumeMessage(e *end, iosb *async.IOSB, maxSize int) {
	if e.flags&FlagMessageStreamRead != 0 {
		d.consumeMessageModeRead(e, iosb, maxSize)
		return
	}
	d.consumeByteStreamRead(e, iosb, maxSize)
}

// consumeMessageModeRead satisfies a read from the head message only,
// preserving message boundaries: a read smaller than the message consumes
// what fits and reports BufferOverflow, but the unread tail stays on the
// queue (readPos advances) rather than being discarded, so a later read on
// the same handle picks up where this one left off. The message is only
// popped, and its writer woken, once it has been fully drained.
func (d *Device) consumeMessageModeRead(e *end, iosb *async.IOSB, maxSize int) {
	m := e.msgQueue[0]
	n := m.remaining()
	truncated := false
	if n > maxSize {
		n = maxSize
		truncated = true
	}
	iosb.OutData = m.iosb.InData[m.readPos : m.readPos+n]
	iosb.Result = n
	m.readPos += n

	if truncated {
		iosb.Status = status.BufferOverflow
	} else {
		iosb.Status = status.Success
		e.msgQueue = e.msgQueue[1:]
		m.wake()
	}
	d.metrics.SetQueueDepth(e.pipeName, e.side, len(e.msgQueue))
}

// consumeByteStreamRead drains e's message queue as a plain byte stream
// (spec.md §4.4): the reading end has no FlagMessageStreamRead, so message
// boundaries aren't preserved across the read — successive messages are
// concatenated into the caller's buffer until it's full or the queue runs
// dry. A message only partially drained to fill the buffer stays queued
// with readPos advanced, exactly as in the message-stream-read case.
func (d *Device) consumeByteStreamRead(e *end, iosb *async.IOSB, maxSize int) {
	buf := make([]byte, 0, maxSize)
	for len(e.msgQueue) > 0 && len(buf) < maxSize {
		m := e.msgQueue[0]
		room := maxSize - len(buf)
		n := m.remaining()
		drained := true
		if n > room {
			n = room
			drained = false
		}
		buf = append(buf, m.iosb.InData[m.readPos:m.readPos+n]...)
		m.readPos += n
		if drained {
			e.msgQueue = e.msgQueue[1:]
			m.wake()
		}
	}
	iosb.OutData = buf
	iosb.Result = len(buf)
	iosb.Status = status.Success
	d.metrics.SetQueueDepth(e.pipeName, e.side, len(e.msgQueue))
}

// reselectReadQueue re-examines e's read queue after something changed
// that might let a suspended reader proceed: the Go-idiomatic replacement
// for named_pipe.c's reselect step, which the original reruns after every
// state change because asyncs aren't woken individually as data arrives.
// ignoreReselect keeps a reselect chain from recursing back into itself
// across a single request, exactly mirroring the original's guard.
func (d *Device) reselectReadQueue(e *end) {
	if d.ignoreReselect {
		return
	}
	d.ignoreReselect = true
	defer func() { d.ignoreReselect = false }()

	d.metrics.IncReselect()
	for len(e.msgQueue) > 0 {
		a := e.readQ.PopPending()
		if a == nil {
			return
		}
		iosb := a.IOSB()
		d.consumeMessage(e, iosb, iosb.OutSize)
		a.Terminate(iosb.Status)
	}
}

func (d *Device) readBytes(e *end, maxSize int, blocking bool) (*async.Async, status.Status) {
	if e.connection == nil && !hostfd.Pending(e.fd) {
		return nil, status.PipeDisconnected
	}

	overlapped := e.fd.Overlapped()

	buf := make([]byte, maxSize)
	if !overlapped {
		n, err := e.fd.Read(buf)
		iosb := &async.IOSB{OutData: buf[:n], Result: n, Status: resultStatus(err)}
		a := async.New(iosb, blocking)
		a.Terminate(iosb.Status)
		return a, status.Success
	}

	iosb := &async.IOSB{}
	a := async.New(iosb, blocking)
	fd := e.fd
	go func() {
		n, err := fd.Read(buf)
		iosb.OutData = buf[:n]
		iosb.Result = n
		a.Terminate(resultStatus(err))
	}()
	return a, status.Success
}

func resultStatus(err error) status.Status {
	if err == nil {
		return status.Success
	}
	return status.PipeBroken
}

// endFor resolves handle to its embedded end, regardless of whether it
// names a Server or a Client.
func (d *Device) endFor(handle uint64) (*end, status.Status) {
	obj, st := d.handles.Get(handle)
	if st != status.Success {
		return nil, st
	}
	switch o := obj.(type) {
	case *Server:
		return &o.end, status.Success
	case *Client:
		return &o.end, status.Success
	default:
		return nil, status.ObjectTypeMismatch
	}
}
