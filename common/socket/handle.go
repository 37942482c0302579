//go:build unix

// Package socket wraps a raw non-blocking socket descriptor.
package socket

import (
	"net"
	"net/netip"
	"time"

	"github.com/sagernet/sing-reactor/common/control"
	E "github.com/sagernet/sing-reactor/common/exceptions"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock reports that the operation cannot progress until the reactor
// signals readiness again. It is not a failure.
var ErrWouldBlock = E.New("operation would block")

// Handle owns exactly one socket descriptor. It is not safe for concurrent use.
type Handle struct {
	fd     int
	family int
	sotype int

	local        netip.AddrPort
	localLoaded  bool
	remote       netip.AddrPort
	remoteLoaded bool

	closed bool
}

// Open creates a non-blocking, close-on-exec socket.
func Open(family int, sotype int) (*Handle, error) {
	fd, err := unix.Socket(family, sotype, 0)
	if err != nil {
		return nil, E.Cause(err, "create socket")
	}
	unix.CloseOnExec(fd)
	err = unix.SetNonblock(fd, true)
	if err != nil {
		unix.Close(fd)
		return nil, E.Cause(err, "set non-blocking")
	}
	return &Handle{fd: fd, family: family, sotype: sotype}, nil
}

func (h *Handle) FD() int {
	if h.closed {
		return -1
	}
	return h.fd
}

func (h *Handle) Family() int {
	return h.family
}

func (h *Handle) Type() int {
	return h.sotype
}

// Connect starts connecting to addr. An in-progress connection is not an
// error; completion is reported by writability and PendingError.
func (h *Handle) Connect(addr netip.AddrPort) error {
	if h.closed {
		return net.ErrClosed
	}
	err := unix.Connect(h.fd, toSockaddr(h.family, addr))
	if err == nil || E.IsAny(err, unix.EINPROGRESS, unix.EINTR, unix.EALREADY) {
		return nil
	}
	return E.Extend(E.Cause(err, "connect"), addr)
}

func (h *Handle) Bind(addr netip.AddrPort) error {
	if h.closed {
		return net.ErrClosed
	}
	err := unix.Bind(h.fd, toSockaddr(h.family, addr))
	if err != nil {
		return E.Extend(E.Cause(err, "bind"), addr)
	}
	return nil
}

func (h *Handle) Listen(backlog int) error {
	if h.closed {
		return net.ErrClosed
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	return E.Cause(unix.Listen(h.fd, backlog), "listen")
}

// Accept returns the next pending connection or ErrWouldBlock.
func (h *Handle) Accept() (*Handle, error) {
	if h.closed {
		return nil, net.ErrClosed
	}
	for {
		fd, sockaddr, err := unix.Accept(h.fd)
		if err == unix.EINTR || err == unix.ECONNABORTED {
			continue
		}
		if E.IsWouldBlock(err) {
			return nil, ErrWouldBlock
		}
		if err != nil {
			return nil, E.Cause(err, "accept")
		}
		unix.CloseOnExec(fd)
		err = unix.SetNonblock(fd, true)
		if err != nil {
			unix.Close(fd)
			return nil, E.Cause(err, "set non-blocking")
		}
		return &Handle{
			fd:           fd,
			family:       h.family,
			sotype:       h.sotype,
			remote:       fromSockaddr(sockaddr),
			remoteLoaded: sockaddr != nil,
		}, nil
	}
}

// Send writes as much of p as the kernel accepts.
func (h *Handle) Send(p []byte) (int, error) {
	if h.closed {
		return 0, net.ErrClosed
	}
	if len(p) == 0 && h.sotype == unix.SOCK_STREAM {
		return 0, nil
	}
	for {
		n, err := unix.Write(h.fd, p)
		if err == unix.EINTR {
			continue
		}
		if E.IsWouldBlock(err) {
			return 0, ErrWouldBlock
		}
		if err != nil {
			return 0, E.Cause(err, "send")
		}
		return n, nil
	}
}

// Receive reads into p. (0, nil) on a stream socket means the peer closed.
func (h *Handle) Receive(p []byte) (int, error) {
	if h.closed {
		return 0, net.ErrClosed
	}
	for {
		n, err := unix.Read(h.fd, p)
		if err == unix.EINTR {
			continue
		}
		if E.IsWouldBlock(err) {
			return 0, ErrWouldBlock
		}
		if err != nil {
			return 0, E.Cause(err, "receive")
		}
		return n, nil
	}
}

// PendingError returns and clears SO_ERROR.
func (h *Handle) PendingError() error {
	if h.closed {
		return net.ErrClosed
	}
	code, err := unix.GetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return E.Cause(err, "get SO_ERROR")
	}
	if code != 0 {
		return unix.Errno(code)
	}
	return nil
}

func (h *Handle) LocalAddress() (netip.AddrPort, error) {
	if h.localLoaded {
		return h.local, nil
	}
	if h.closed {
		return netip.AddrPort{}, net.ErrClosed
	}
	sockaddr, err := unix.Getsockname(h.fd)
	if err != nil {
		return netip.AddrPort{}, E.Cause(err, "get local address")
	}
	h.local = fromSockaddr(sockaddr)
	h.localLoaded = true
	return h.local, nil
}

func (h *Handle) RemoteAddress() (netip.AddrPort, error) {
	if h.remoteLoaded {
		return h.remote, nil
	}
	if h.closed {
		return netip.AddrPort{}, net.ErrClosed
	}
	sockaddr, err := unix.Getpeername(h.fd)
	if err != nil {
		return netip.AddrPort{}, E.Cause(err, "get remote address")
	}
	h.remote = fromSockaddr(sockaddr)
	h.remoteLoaded = true
	return h.remote, nil
}

func (h *Handle) SetKeepAlive(enabled bool, idle time.Duration, interval time.Duration) error {
	if h.closed {
		return net.ErrClosed
	}
	return control.Apply(h.fd, control.SetKeepAlive(enabled, idle, interval))
}

func (h *Handle) Control(funcs ...control.Func) error {
	if h.closed {
		return net.ErrClosed
	}
	return control.Apply(h.fd, funcs...)
}

// Close releases the descriptor. Addresses already known, or still
// resolvable at this point, stay available afterwards.
func (h *Handle) Close() error {
	if h.closed {
		return net.ErrClosed
	}
	h.LocalAddress()
	h.RemoteAddress()
	h.closed = true
	return E.Cause(unix.Close(h.fd), "close")
}
