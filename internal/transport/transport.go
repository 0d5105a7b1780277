// Package transport is the RPC front end named_pipe.c never needed,
// because the original server's requests arrive over its own
// object-request-packet protocol already baked into the process. This
// server is a standalone binary, so it needs a wire format of its own:
// gob-encoded request/response frames over a Unix domain socket, one
// goroutine per connection, dispatching into internal/pipe. No
// third-party RPC framework in the retrieval pack fits without also
// pulling in a protobuf toolchain this exercise can't run, so this one
// seam is built on net and encoding/gob rather than an ecosystem library
// (see the project's grounding notes for the full justification).
package transport

import (
	"encoding/gob"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wine-np/npserver/internal/pipe"
	"github.com/wine-np/npserver/internal/status"
)

// Op identifies which Device method a Request dispatches to.
type Op string

const (
	OpCreateNamedPipe Op = "create_named_pipe"
	OpOpenFile        Op = "open_file"
	OpGetInfo         Op = "get_info"
	OpSetInfo         Op = "set_info"
	OpListen          Op = "listen"
	OpDisconnect      Op = "disconnect"
	OpRead            Op = "read"
	OpWrite           Op = "write"
	OpFlush           Op = "flush"
	OpPeek            Op = "peek"
	OpWait            Op = "wait"
	OpClose           Op = "close"
)

// Request is the single wire frame every RPC call sends; unused fields
// for a given Op are left zero.
type Request struct {
	Op Op

	Handle  uint64
	Name    string
	Access  uint32
	Data    []byte
	MaxSize int
	Blocking bool
	TimeoutMillis int64

	CreateNamedPipe pipe.CreateNamedPipeRequest
	OpenOptions     pipe.Options
	SetInfoFlags    pipe.Flags
}

// Response is the single wire frame every RPC call receives back.
type Response struct {
	Status status.Status
	Handle uint64
	N      int
	Data   []byte
	Info   pipe.PipeInfo
	Peek   pipe.PeekResult
}

// Server accepts connections on a Unix domain socket and dispatches
// decoded requests into a pipe.Device.
type Server struct {
	device *pipe.Device
	log    logrus.FieldLogger
}

// New returns a Server that dispatches into device.
func New(device *pipe.Device, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{device: device, log: log}
}

// Serve listens on socketPath (removing any stale socket file left behind
// by a previous run) and accepts connections until lis is closed.
func (s *Server) Serve(socketPath string) error {
	_ = os.Remove(socketPath)
	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		return errors.Wrapf(err, "listening on %q", socketPath)
	}
	defer lis.Close()

	var g errgroup.Group
	for {
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.WithError(err).Warn("accept failed")
			continue
		}
		g.Go(func() error {
			s.handleConn(conn)
			return nil
		})
	}
	return g.Wait()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	dec := gob.NewDecoder(conn)
	enc := gob.NewEncoder(conn)

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := enc.Encode(&resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Op {
	case OpCreateNamedPipe:
		handle, st := s.device.CreateNamedPipe(req.CreateNamedPipe)
		return Response{Status: st, Handle: handle}

	case OpOpenFile:
		handle, st := s.device.OpenFile(req.Name, req.Access, req.OpenOptions)
		return Response{Status: st, Handle: handle}

	case OpGetInfo:
		info, st := s.device.GetInfo(req.Handle)
		return Response{Status: st, Info: info}

	case OpSetInfo:
		st := s.device.SetInfo(req.Handle, req.SetInfoFlags)
		return Response{Status: st}

	case OpListen:
		a, st := s.device.Listen(req.Handle)
		if st != status.Pending {
			return Response{Status: st}
		}
		<-a.Done()
		return Response{Status: a.IOSB().Status}

	case OpDisconnect:
		st := s.device.Disconnect(req.Handle)
		return Response{Status: st}

	case OpRead:
		a, st := s.device.Read(req.Handle, req.MaxSize, req.Blocking)
		if st != status.Success {
			return Response{Status: st}
		}
		<-a.Done()
		iosb := a.IOSB()
		return Response{Status: iosb.Status, N: iosb.Result, Data: iosb.OutData}

	case OpWrite:
		a, st := s.device.Write(req.Handle, req.Data)
		if st != status.Success {
			return Response{Status: st}
		}
		<-a.Done()
		iosb := a.IOSB()
		return Response{Status: iosb.Status, N: iosb.Result}

	case OpFlush:
		a, st := s.device.Flush(req.Handle)
		if st != status.Success {
			return Response{Status: st}
		}
		<-a.Done()
		return Response{Status: a.IOSB().Status}

	case OpPeek:
		peek, st := s.device.Peek(req.Handle, req.MaxSize)
		return Response{Status: st, Peek: peek}

	case OpWait:
		a, st := s.device.Wait(req.Name, time.Duration(req.TimeoutMillis)*time.Millisecond)
		if st != status.Success {
			return Response{Status: st}
		}
		<-a.Done()
		return Response{Status: a.IOSB().Status}

	case OpClose:
		st := s.device.CloseHandle(req.Handle)
		return Response{Status: st}

	default:
		return Response{Status: status.InvalidParameter}
	}
}
