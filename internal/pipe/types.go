// Package pipe is the named-pipe core: the pipe-end state machine and its
// asynchronous I/O engine, translated from named_pipe.c's single-threaded
// object model into an actor-style Go package (see Device in device.go).
// Every type here corresponds 1:1 to a struct in spec.md §3.
package pipe

import (
	"time"

	"github.com/wine-np/npserver/internal/async"
	"github.com/wine-np/npserver/internal/guid"
	"github.com/wine-np/npserver/internal/hostfd"
	"github.com/wine-np/npserver/internal/object"
	"github.com/wine-np/npserver/internal/status"
)

// Flags are the NAMED_PIPE_* bits from spec.md §3/§6.
type Flags uint32

const (
	FlagMessageStreamWrite Flags = 1 << iota
	FlagMessageStreamRead
	FlagNonBlocking
	// FlagServerEnd is never stored on an End; get_named_pipe_info ORs it
	// into the reply only when the handle being queried is a server.
	FlagServerEnd
)

// Sharing are the FILE_SHARE_* bits a NamedPipe is created with.
type Sharing uint32

const (
	ShareRead Sharing = 1 << iota
	ShareWrite
)

// Options are the per-handle FILE_* creation options relevant to this
// subsystem: only whether the handle is overlapped matters here.
type Options uint32

const (
	// OptOverlapped marks a handle as asynchronous; absent, the handle is
	// synchronous (is_overlapped() in the original is the negation of the
	// two FILE_SYNCHRONOUS_IO_* bits — we just name the positive case).
	OptOverlapped Options = 1 << iota
)

// Message is one in-flight write in message mode (spec.md §3 PipeMessage).
type Message struct {
	readPos int
	iosb    *async.IOSB
	writer  *async.Async // nil once the message has been woken
}

func (m *Message) remaining() int { return len(m.iosb.InData) - m.readPos }

// wake completes the writer's async: status success, result the full
// write size, and releases this message's hold on that async.
func (m *Message) wake() {
	a := m.writer
	m.writer = nil
	m.iosb.Result = len(m.iosb.InData)
	if a != nil {
		// The writer's async shares m.iosb, so Terminate is what sets the
		// status; setting it first would make Terminate a no-op.
		a.Terminate(status.Success)
	} else {
		m.iosb.Status = status.Success
	}
}

// end is the common endpoint: embedded in both Server and Client exactly as
// pipe_end is embedded at the head of pipe_server/pipe_client in the
// original (spec.md §3 "PipeEnd").
type end struct {
	flags      Flags
	connection *end // weak peer edge; nil on both sides simultaneously or symmetric
	bufferSize int
	msgQueue   []*Message
	readQ      *async.Queue
	writeQ     *async.Queue

	fd          hostfd.FD    // byte-mode data socket; nil in message mode
	fdSignalled bool         // client's pseudo-FD signalled bit in message mode
	waitQ       *async.Queue // this end's FD-level wait queue (listen/flush waits)

	pipeName string // owning NamedPipe's name, for metrics labels only
	side     string // "server" or "client", for metrics labels only
}

func newEnd(flags Flags, bufferSize int, pipeName, side string) end {
	return end{
		flags:      flags,
		bufferSize: bufferSize,
		readQ:      async.NewQueue(),
		writeQ:     async.NewQueue(),
		waitQ:      async.NewQueue(),
		pipeName:   pipeName,
		side:       side,
	}
}

func (e *end) useServerIO() bool { return e.flags&FlagMessageStreamWrite != 0 }

// State is a PipeServer's position in the table in spec.md §4.3.
type State int

const (
	StateIdle State = iota
	StateWaitOpen
	StateConnected
	StateWaitDisconnect
	StateWaitConnect
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle_server"
	case StateWaitOpen:
		return "wait_open"
	case StateConnected:
		return "connected_server"
	case StateWaitDisconnect:
		return "wait_disconnect"
	case StateWaitConnect:
		return "wait_connect"
	default:
		return "unknown"
	}
}

// Server is the server-side endpoint (spec.md §3 "PipeServer").
type Server struct {
	end
	id         guid.GUID
	pipe       *NamedPipe
	state      State
	client     *Client
	options    Options
	sd         object.SecurityDescriptor
	ioctlNoFD  status.Status // STATUS_PIPE_LISTENING / STATUS_PIPE_DISCONNECTED while unconnected
	flushTimer *time.Timer
	handle     uint64 // handle this server is registered under in device.handles
	destroyed  bool
}

// Client is the client-side endpoint (spec.md §3 "PipeClient").
type Client struct {
	end
	id     guid.GUID
	server *Server
	handle uint64
}

// NamedPipe is an instance family identified by a path (spec.md §3).
type NamedPipe struct {
	device       *Device
	name         string
	id           guid.GUID
	flags        Flags   // only FlagMessageStreamWrite is meaningful here
	sharing      Sharing
	maxInstances uint32
	inSize       int
	outSize      int
	timeout      time.Duration
	instances    uint32
	servers      []*Server
	waiters      *async.Queue // created together with the NamedPipe
}

// Server and Client implement object.Destroyer, which object.Table's Close
// calls once a handle's last reference drops, so releasing a handle tears
// the owning object down.
var _ object.Destroyer = (*Server)(nil)
var _ object.Destroyer = (*Client)(nil)
