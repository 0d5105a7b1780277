package pipe

import (
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wine-np/npserver/internal/async"
	"github.com/wine-np/npserver/internal/guid"
	"github.com/wine-np/npserver/internal/hostfd"
	"github.com/wine-np/npserver/internal/object"
	"github.com/wine-np/npserver/internal/status"
)

// flushPollInterval is the polling cadence Flush uses in both modes (§4.4,
// §9): the original server arms a -TICKS_PER_SEC/10 timeout user
// (check_flushed) for byte mode because a Unix socket offers no "now empty"
// event, and flush.go polls the message queue at the same cadence.
const flushPollInterval = 100 * time.Millisecond

// Metrics is the observability seam the device reports through; a no-op
// implementation is used when none is supplied.
type Metrics interface {
	SetInstances(pipeName string, n int)
	SetConnected(pipeName string, n int)
	SetQueueDepth(pipeName, end string, n int)
	IncReselect()
}

type nopMetrics struct{}

func (nopMetrics) SetInstances(string, int)       {}
func (nopMetrics) SetConnected(string, int)       {}
func (nopMetrics) SetQueueDepth(string, string, int) {}
func (nopMetrics) IncReselect()                   {}

// Device is the named-pipe namespace root (spec.md §3 "PipeDevice"). All
// state mutation funnels through Device.mu, which plays the role the
// original's single-threaded event loop plays: spec.md §5 calls for
// "logical turn-taking, not locks" because only one request is ever live
// at a time; here, one mutex held for a request's duration gives the same
// guarantee while letting each client RPC run on its own goroutine.
type Device struct {
	mu sync.Mutex

	namespace *object.Namespace
	handles   *object.Table
	log       logrus.FieldLogger
	metrics   Metrics

	// ignoreReselect mirrors the single process-wide flag named_pipe.c
	// keeps (spec.md §4.4, §9 "Global mutable state"): true for the
	// duration of a reselect call, false otherwise. Because Device.mu is
	// held for the whole of any public entry point, this remains exactly
	// as single-threaded as the original's global int.
	ignoreReselect bool
}

// Option configures a Device at construction time.
type Option func(*Device)

// WithLogger overrides the default logrus logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Device) { d.log = log }
}

// WithMetrics overrides the default no-op metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(d *Device) { d.metrics = m }
}

// NewDevice creates an empty named-pipe namespace root.
func NewDevice(opts ...Option) *Device {
	d := &Device{
		namespace: object.NewNamespace(),
		handles:   object.NewTable(),
		log:       logrus.StandardLogger(),
		metrics:   nopMetrics{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// CreateNamedPipeRequest mirrors the create_named_pipe wire request
// (spec.md §6).
type CreateNamedPipeRequest struct {
	Name         string
	Sharing      Sharing
	MaxInstances uint32
	InSize       int
	OutSize      int
	Timeout      time.Duration
	Flags        Flags
	Options      Options
	SD           object.SecurityDescriptor
}

// CreateNamedPipe implements spec.md §4.1.
func (d *Device) CreateNamedPipe(req CreateNamedPipeRequest) (handle uint64, st status.Status) {
	if req.Sharing == 0 || req.Sharing&^(ShareRead|ShareWrite) != 0 {
		return 0, status.InvalidParameter
	}
	if req.Flags&FlagMessageStreamRead != 0 && req.Flags&FlagMessageStreamWrite == 0 {
		return 0, status.InvalidParameter
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	obj, existed, err := d.namespace.OpenIf(req.Name, func() (any, error) {
		id, e := guid.New()
		if e != nil {
			return nil, e
		}
		np := &NamedPipe{
			device:       d,
			name:         req.Name,
			id:           id,
			flags:        req.Flags & FlagMessageStreamWrite,
			sharing:      req.Sharing,
			maxInstances: req.MaxInstances,
			inSize:       req.InSize,
			outSize:      req.OutSize,
			timeout:      req.Timeout,
			waiters:      async.NewQueue(),
		}
		return np, nil
	})
	if err != nil {
		d.log.WithError(err).Error("allocating named pipe")
		return 0, status.NoMemory
	}

	np := obj.(*NamedPipe)
	if existed {
		if np.maxInstances <= np.instances {
			return 0, status.InstanceNotAvailable
		}
		if np.sharing != req.Sharing {
			return 0, status.AccessDenied
		}
	}

	server, err := d.createServer(np, req.Options, req.Flags)
	if err != nil {
		return 0, status.NoMemory
	}
	if len(req.SD) > 0 {
		server.sd = req.SD
	}

	np.servers = append(np.servers, server)
	np.instances++
	d.metrics.SetInstances(np.name, int(np.instances))

	server.handle = d.handles.Alloc(server)
	d.log.WithFields(logrus.Fields{"pipe": np.name, "server": server.id.String()}).Debug("named pipe server created")
	return server.handle, status.Success
}

func (d *Device) createServer(np *NamedPipe, options Options, pipeFlags Flags) (*Server, error) {
	id, err := guid.New()
	if err != nil {
		return nil, err
	}
	s := &Server{
		end:     newEnd(pipeFlags&FlagMessageStreamWrite, np.inSize, np.name, "server"),
		id:      id,
		pipe:    np,
		options: options,
	}
	d.setServerState(s, StateIdle)
	return s, nil
}

// PipeInfo mirrors get_named_pipe_info's reply (spec.md §6).
type PipeInfo struct {
	Flags        Flags
	Sharing      Sharing
	MaxInstances uint32
	Instances    uint32
	InSize       int
	OutSize      int
}

// GetInfo implements get_named_pipe_info for either a server or client handle.
func (d *Device) GetInfo(handle uint64) (PipeInfo, status.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, st := d.handles.Get(handle)
	if st != status.Success {
		return PipeInfo{}, st
	}

	switch e := obj.(type) {
	case *Server:
		info := PipeInfo{
			Flags: e.flags | FlagServerEnd, Sharing: e.pipe.sharing, MaxInstances: e.pipe.maxInstances,
			Instances: e.pipe.instances, InSize: e.pipe.inSize, OutSize: e.pipe.outSize,
		}
		return info, status.Success
	case *Client:
		info := PipeInfo{Flags: e.flags}
		if e.server != nil {
			info.Sharing = e.server.pipe.sharing
			info.MaxInstances = e.server.pipe.maxInstances
			info.Instances = e.server.pipe.instances
			info.InSize = e.server.pipe.inSize
			info.OutSize = e.server.pipe.outSize
		}
		return info, status.Success
	default:
		return PipeInfo{}, status.ObjectTypeMismatch
	}
}

// SetInfo implements set_named_pipe_info (spec.md §6): the only writable
// bits are message-stream-read and non-blocking.
func (d *Device) SetInfo(handle uint64, flags Flags) status.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, st := d.handles.Get(handle)
	if st != status.Success {
		return st
	}

	const writable = FlagMessageStreamRead | FlagNonBlocking

	switch e := obj.(type) {
	case *Server:
		if flags&^writable != 0 {
			return status.InvalidParameter
		}
		if flags&FlagMessageStreamRead != 0 && e.pipe.flags&FlagMessageStreamWrite == 0 {
			return status.InvalidParameter
		}
		e.flags = e.pipe.flags | flags
		return status.Success
	case *Client:
		if e.server == nil {
			return status.PipeDisconnected
		}
		if flags&^writable != 0 {
			return status.InvalidParameter
		}
		if flags&FlagMessageStreamRead != 0 && e.server.pipe.flags&FlagMessageStreamWrite == 0 {
			return status.InvalidParameter
		}
		e.flags = e.server.pipe.flags | flags
		return status.Success
	default:
		return status.ObjectTypeMismatch
	}
}

// CloseHandle releases one reference on handle, running Destroy once the
// last reference is gone.
func (d *Device) CloseHandle(handle uint64) status.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handles.Close(handle)
}

// OpenFile implements named_pipe_open_file (spec.md §4.2): client connect.
func (d *Device) OpenFile(name string, access uint32, options Options) (handle uint64, st status.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.namespace.Lookup(name)
	if !ok {
		return 0, status.ObjectNameInvalid
	}
	np := obj.(*NamedPipe)

	server := findAvailableServer(np)
	if server == nil {
		return 0, status.PipeNotAvailable
	}

	const genericRead, genericWrite = uint32(1) << 31, uint32(1) << 30
	if (access&genericRead != 0 && np.sharing&ShareRead == 0) ||
		(access&genericWrite != 0 && np.sharing&ShareWrite == 0) {
		return 0, status.AccessDenied
	}

	client := &Client{end: newEnd(np.flags, np.outSize, np.name, "client")}
	if id, err := guid.New(); err == nil {
		client.id = id
	}

	if err := d.pairEndpoints(server, client, options); err != nil {
		return 0, status.NoMemory
	}

	wasWaitOpen := server.state == StateWaitOpen
	if wasWaitOpen {
		server.waitQ.WakeOne(status.Success)
	}
	d.setServerState(server, StateConnected)
	server.client = client
	client.server = server
	server.connection = &client.end
	client.connection = &server.end

	client.handle = d.handles.Alloc(client)

	d.metrics.SetConnected(np.name, connectedCount(np))
	d.log.WithFields(logrus.Fields{"pipe": np.name, "server": server.id.String(), "client": client.id.String()}).
		Debug("client connected to named pipe server")
	return client.handle, status.Success
}

func connectedCount(np *NamedPipe) int {
	n := 0
	for _, s := range np.servers {
		if s.state == StateConnected {
			n++
		}
	}
	return n
}

// pairEndpoints wires client and server together per spec.md §4.2 step 4,
// rolling back anything it allocated on failure (spec.md §7: "every
// failure path in open_file is responsible for releasing both the nascent
// client and any FDs created so far").
func (d *Device) pairEndpoints(server *Server, client *Client, options Options) error {
	var rollback error

	if server.useServerIO() {
		client.fdSignalled = true
		return nil
	}

	serverOverlapped := server.options&OptOverlapped != 0
	clientOverlapped := options&OptOverlapped != 0

	serverFD, clientFD, err := hostfd.NewSocketPair(server.pipe.inSize, server.pipe.outSize, serverOverlapped, clientOverlapped)
	if err != nil {
		rollback = multierror.Append(rollback, errors.Wrap(err, "pairing byte-mode pipe endpoints")).ErrorOrNil()
		return rollback
	}
	server.fd = serverFD
	client.fd = clientFD
	return nil
}

func findAvailableServer(np *NamedPipe) *Server {
	for _, s := range np.servers {
		if s.state == StateWaitOpen {
			return s
		}
	}
	for _, s := range np.servers {
		if s.state == StateIdle {
			return s
		}
	}
	return nil
}
