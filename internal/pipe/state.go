package pipe

import (
	"github.com/sirupsen/logrus"

	"github.com/wine-np/npserver/internal/async"
	"github.com/wine-np/npserver/internal/status"
)

// setServerState moves s to newState and refreshes the status handed back
// to read/write/ioctl calls that find no live connection, the role
// ioctl_no_fd plays in the original's pipe_server struct (spec.md §3/§4.3).
func (d *Device) setServerState(s *Server, newState State) {
	s.state = newState
	switch newState {
	case StateIdle, StateWaitOpen:
		s.ioctlNoFD = status.PipeListening
	case StateConnected:
		s.ioctlNoFD = status.Success
	case StateWaitDisconnect, StateWaitConnect:
		s.ioctlNoFD = status.PipeDisconnected
	}
}

// Listen implements FSCTL_PIPE_LISTEN (spec.md §4.3 table): an idle server
// starts advertising itself to OpenFile and suspends the caller in its own
// waitQ until a client connects; an already-waiting server joins the same
// queue. wait_connect is treated the same as idle — a server whose former
// client has already been fully released (named_pipe.c:975-979) can be
// re-listened — while wait_disconnect, whose connection edge is already torn
// down but which still needs an explicit Disconnect to reach wait_connect,
// reports no_data_detected instead. A connected server reports that no
// more listeners are available.
func (d *Device) Listen(handle uint64) (*async.Async, status.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, st := d.serverFor(handle)
	if st != status.Success {
		return nil, st
	}

	switch s.state {
	case StateIdle, StateWaitConnect:
		d.setServerState(s, StateWaitOpen)
		s.pipe.waiters.WakeAll(status.Success)
	case StateWaitOpen:
		// already advertising; join the same wait.
	case StateWaitDisconnect:
		return nil, status.NoDataDetected
	default:
		return nil, status.InstanceNotAvailable
	}

	iosb := &async.IOSB{}
	a := async.New(iosb, true)
	s.waitQ.Enqueue(a)
	return a, status.Pending
}

// Disconnect implements FSCTL_PIPE_DISCONNECT, the do_disconnect
// equivalent: the server end of a live connection asks to be severed. If
// the client has already released its handle this resets the server
// straight back to idle; otherwise the server waits in wait_disconnect for
// that release (spec.md §4.3, §9). Unlike disconnectEnd itself, this is
// where the server's data FD actually gets released — do_disconnect, not
// pipe_end_disconnect, owns that in the original (named_pipe.c:414-441 vs.
// pipe_server_destroy). Called again once already in wait_disconnect (the
// peer vanished first and the FD was kept around for a pending flush), it
// finally releases that retained FD and moves on to wait_connect
// (named_pipe.c:1013-1017), from where a fresh Listen is allowed.
func (d *Device) Disconnect(handle uint64) status.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, st := d.serverFor(handle)
	if st != status.Success {
		return st
	}

	switch s.state {
	case StateConnected:
		clientAlive := s.client != nil
		d.disconnectEnd(&s.end, status.PipeDisconnected)
		s.client = nil
		releaseEndFD(&s.end)

		if clientAlive {
			d.setServerState(s, StateWaitDisconnect)
		} else {
			d.setServerState(s, StateIdle)
		}
	case StateWaitDisconnect:
		releaseEndFD(&s.end)
		d.setServerState(s, StateWaitConnect)
	default:
		return status.PipeDisconnected
	}

	d.log.WithField("server", s.id.String()).Debug("named pipe server disconnected")
	return status.Success
}

// disconnectEnd is pipe_end_disconnect: it tears down the symmetric
// connection edge between two ends, waking every queue on both sides with
// st, the status spec.md §4.5 says the caller owns — pipe_broken for
// destruction/peer-death paths, pipe_disconnected for an explicit
// FSCTL_PIPE_DISCONNECT. It deliberately does not touch either side's data
// FD: named_pipe.c keeps that teardown in do_disconnect/pipe_server_destroy
// (named_pipe.c:414-441 touches no FD), so a server can retain its FD after
// its peer dies and still let a pending flush complete. The FD-signalled
// bit only gets lowered for an explicit disconnect, per §4.5 step 2.
func (d *Device) disconnectEnd(e *end, st status.Status) {
	peer := e.connection
	if peer == nil {
		return
	}
	e.connection = nil
	peer.connection = nil

	for _, side := range [2]*end{e, peer} {
		side.readQ.WakeAll(st)
		side.writeQ.WakeAll(st)
		side.waitQ.WakeAll(st)
		for _, m := range side.msgQueue {
			// m.iosb is shared with m.writer, so only Terminate sets it
			// when there is a writer; setting it first would make
			// Terminate a no-op.
			if m.writer != nil {
				m.writer.Terminate(st)
			} else {
				m.iosb.Status = st
			}
		}
		side.msgQueue = nil
		d.metrics.SetQueueDepth(side.pipeName, side.side, 0)
		if st == status.PipeDisconnected {
			side.fdSignalled = false
		}
	}
}

// releaseEndFD shuts down and closes e's data-plane socket, if any. Kept
// separate from disconnectEnd so the two concerns — severing the logical
// connection and freeing the underlying FD — can happen at different
// times, matching the original's do_disconnect/pipe_server_destroy split.
func releaseEndFD(e *end) {
	if e.fd == nil {
		return
	}
	e.fd.Shutdown()
	e.fd.Close()
	e.fd = nil
}

// serverFor resolves handle to its Server, failing ObjectTypeMismatch if
// the handle names a Client instead.
func (d *Device) serverFor(handle uint64) (*Server, status.Status) {
	obj, st := d.handles.Get(handle)
	if st != status.Success {
		return nil, st
	}
	s, ok := obj.(*Server)
	if !ok {
		return nil, status.ObjectTypeMismatch
	}
	return s, status.Success
}

// clientFor resolves handle to its Client.
func (d *Device) clientFor(handle uint64) (*Client, status.Status) {
	obj, st := d.handles.Get(handle)
	if st != status.Success {
		return nil, st
	}
	c, ok := obj.(*Client)
	if !ok {
		return nil, status.ObjectTypeMismatch
	}
	return c, status.Success
}

// Destroy runs when a server handle's last reference drops. A server that
// is still connected is disconnected first, mirroring pipe_server_destroy
// asserting the instance is idle before freeing it (spec.md §9: the
// original's bare assert becomes a logged invariant violation here rather
// than a crash, since a Go handle table can legitimately outlive callers
// that forgot to Disconnect).
func (s *Server) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true

	np := s.pipe
	d := np.device

	if s.connection != nil {
		d.log.WithField("server", s.id.String()).
			Warn("server handle closed while still connected; forcing disconnect")
		d.disconnectEnd(&s.end, status.PipeBroken)
	}
	// A pending Listen is queued on waitQ with no connection to tear down.
	s.waitQ.WakeAll(status.PipeBroken)
	releaseEndFD(&s.end)
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}

	for i, candidate := range np.servers {
		if candidate == s {
			np.servers = append(np.servers[:i], np.servers[i+1:]...)
			break
		}
	}
	if np.instances > 0 {
		np.instances--
	} else {
		d.log.WithField("pipe", np.name).Warn("server destroyed with instance count already zero")
	}
	d.metrics.SetInstances(np.name, int(np.instances))

	if np.instances == 0 && len(np.servers) == 0 {
		d.namespace.Remove(np.name)
	}
}

// Destroy runs when a client handle's last reference drops. If the
// connection is still live this is the "peer closed its handle" teardown
// path: the server transitions to wait_disconnect (named_pipe.c:525), not
// wait_connect — it keeps the server object alive, in a distinct state,
// and crucially keeps its data FD open so an already-buffered flush can
// still drain, until a later explicit Disconnect ioctl releases it and
// moves the server on to wait_connect. The client's own FD is released
// here regardless, since this handle is gone for good.
func (c *Client) Destroy() {
	srv := c.server
	if srv == nil {
		return
	}
	dev := srv.pipe.device

	if c.connection != nil {
		dev.disconnectEnd(&c.end, status.PipeBroken)
		dev.setServerState(srv, StateWaitDisconnect)
	}
	releaseEndFD(&c.end)
	srv.client = nil
	dev.metrics.SetConnected(srv.pipe.name, connectedCount(srv.pipe))
	dev.log.WithFields(logrus.Fields{"client": c.id.String(), "server": srv.id.String()}).
		Debug("client handle closed")
}
