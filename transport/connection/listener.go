//go:build unix

package connection

import (
	"errors"
	"net/netip"

	"github.com/sagernet/sing-reactor/common/control"
	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/log"
	"github.com/sagernet/sing-reactor/common/reactor"
	"github.com/sagernet/sing-reactor/common/socket"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const listenBacklog = 128

// Listener accepts TCP connections, one per readable event.
type Listener struct {
	reactor  *reactor.Reactor
	handle   *socket.Handle
	options  Options
	logger   logrus.FieldLogger
	onAccept func(stream *Stream)
}

// Listen binds address, an ip:port pair, and starts accepting. Accepted
// streams are handed over Connected; without an accept handler they are
// closed right away.
func Listen(r *reactor.Reactor, address string, options Options) (*Listener, error) {
	bindAddress, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, E.Cause(err, "parse listen address")
	}
	handle, err := socket.Open(socket.Family(bindAddress.Addr()), unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}
	err = handle.Control(control.ReuseAddr())
	if err == nil {
		err = handle.Bind(bindAddress)
	}
	if err == nil {
		err = handle.Listen(listenBacklog)
	}
	if err != nil {
		handle.Close()
		return nil, E.Cause(err, "listen ", address)
	}
	logger := options.Logger
	if logger == nil {
		logger = log.NewLogger("listener")
	}
	l := &Listener{
		reactor: r,
		handle:  handle,
		options: options,
		logger:  logger,
	}
	r.Register(l, false)
	r.SetReadInterest(l, true)
	if local, err := handle.LocalAddress(); err == nil {
		l.logger.Info("listening on ", local)
	}
	return l, nil
}

func (l *Listener) SetAcceptHandler(handler func(stream *Stream)) {
	l.onAccept = handler
}

func (l *Listener) Address() (netip.AddrPort, error) {
	return l.handle.LocalAddress()
}

func (l *Listener) FD() int {
	return l.handle.FD()
}

func (l *Listener) HandleReadable() {
	handle, err := l.handle.Accept()
	if errors.Is(err, socket.ErrWouldBlock) {
		return
	}
	if err != nil {
		l.logger.Warn("accept: ", err)
		return
	}
	stream := newAcceptedStream(l.reactor, handle, l.options)
	if l.onAccept == nil {
		stream.Disconnect("no accept handler", DisconnectError)
		return
	}
	l.onAccept(stream)
}

func (l *Listener) HandleWritable() {
}

func (l *Listener) HandleError() {
	l.logger.Error("listener: ", l.handle.PendingError())
	l.Close()
}

func (l *Listener) Close() error {
	if l.reactor.Registered(l) {
		l.reactor.Unregister(l)
	}
	return l.handle.Close()
}
