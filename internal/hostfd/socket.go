// Package hostfd is the thin layer over host OS primitives that the
// byte-mode I/O path in internal/pipe is built on: a connected pair of
// stream sockets standing in for the two ends of a byte-mode pipe, exactly
// the way named_pipe.c pairs two Unix domain sockets with socketpair(2)
// instead of implementing byte-stream transfer itself. Message-mode pipes
// never reach this package — their data plane is the in-server message
// queue in internal/pipe.
package hostfd

import (
	"net"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// FD is the capability set the pipe core needs from a host file descriptor,
// matching the fd_ops vector named_pipe.c dispatches through: read, write,
// flush-relevant shutdown, and the non-blocking toggle overlapped I/O
// requires.
type FD interface {
	net.Conn
	Shutdown() error
	SetNonblock(enable bool) error
	// Overlapped reports whether this end was opened for asynchronous I/O,
	// the condition internal/pipe uses to decide whether a Read/Write can
	// run inline or must be dispatched to its own goroutine.
	Overlapped() bool
}

type socketFD struct {
	*os.File
	raw        int
	overlapped bool
}

func (s *socketFD) Overlapped() bool { return s.overlapped }

func (s *socketFD) Shutdown() error {
	return unix.Shutdown(s.raw, unix.SHUT_RDWR)
}

func (s *socketFD) SetNonblock(enable bool) error {
	return unix.SetNonblock(s.raw, enable)
}

// LocalAddr and RemoteAddr satisfy net.Conn; named pipes have no network
// address, so both return a fixed "pipe" placeholder.
func (s *socketFD) LocalAddr() net.Addr  { return pipeAddr{} }
func (s *socketFD) RemoteAddr() net.Addr { return pipeAddr{} }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

// NewSocketPair creates a connected pair of Unix-domain stream sockets,
// applies the caller's receive/send buffer-size hints to both ends, and
// sets each end non-blocking independently according to whether that end's
// handle was opened for overlapped I/O — mirroring makeServerPipeHandle /
// named_pipe_open_file's fcntl(O_NONBLOCK) and SO_RCVBUF/SO_SNDBUF calls.
func NewSocketPair(inSize, outSize int, serverOverlapped, clientOverlapped bool) (server, client FD, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating pipe socket pair")
	}

	if inSize > 0 {
		_ = unix.SetsockoptInt(fds[0], unix.SOL_SOCKET, unix.SO_RCVBUF, inSize)
		_ = unix.SetsockoptInt(fds[1], unix.SOL_SOCKET, unix.SO_RCVBUF, inSize)
	}
	if outSize > 0 {
		_ = unix.SetsockoptInt(fds[0], unix.SOL_SOCKET, unix.SO_SNDBUF, outSize)
		_ = unix.SetsockoptInt(fds[1], unix.SOL_SOCKET, unix.SO_SNDBUF, outSize)
	}

	serverFD := &socketFD{File: os.NewFile(uintptr(fds[0]), "pipe-server"), raw: fds[0]}
	clientFD := &socketFD{File: os.NewFile(uintptr(fds[1]), "pipe-client"), raw: fds[1]}

	// Only set non-blocking mode for overlapped handles: a synchronous
	// handle is meant to busy the calling goroutine inside Read/Write,
	// which os.File already gives us for free over a blocking fd.
	if serverOverlapped {
		if err := serverFD.SetNonblock(true); err != nil {
			serverFD.Close()
			clientFD.Close()
			return nil, nil, errors.Wrap(err, "setting server end non-blocking")
		}
		serverFD.overlapped = true
	}
	if clientOverlapped {
		if err := clientFD.SetNonblock(true); err != nil {
			serverFD.Close()
			clientFD.Close()
			return nil, nil, errors.Wrap(err, "setting client end non-blocking")
		}
		clientFD.overlapped = true
	}

	return serverFD, clientFD, nil
}

// Pending reports whether there is unread data sitting in fd's receive
// buffer, used by the byte-mode flush poller (check_flushed in the
// original) since a Unix socket offers no direct "drain" notification.
func Pending(fd FD) bool {
	sfd, ok := fd.(*socketFD)
	if !ok {
		return false
	}
	pfd := []unix.PollFd{{Fd: int32(sfd.raw), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, 0)
	if err != nil || n <= 0 {
		return false
	}
	return pfd[0].Revents&unix.POLLIN != 0
}
