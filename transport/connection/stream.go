//go:build unix

package connection

import (
	"context"
	"math/rand"
	"net/netip"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/reactor"
	"github.com/sagernet/sing-reactor/common/socket"

	"golang.org/x/sys/unix"
)

var _ Connection = (*Stream)(nil)

// Stream is a TCP connection.
type Stream struct {
	conn
	port       uint16
	candidates []netip.Addr
	target     netip.AddrPort
	attempt    uint64
}

func NewStream(r *reactor.Reactor, options Options) *Stream {
	s := &Stream{}
	s.init(r, s, options, false)
	return s
}

func newAcceptedStream(r *reactor.Reactor, handle socketHandle, options Options) *Stream {
	s := NewStream(r, options)
	s.state = StateConnected
	s.applyKeepAlive(handle)
	s.attach(handle)
	if remote, err := handle.RemoteAddress(); err == nil {
		s.logger = s.baseLogger.WithField("remote", remote)
	}
	return s
}

// Connect starts connecting to host, which is either an IP literal or a name
// resolved through Options.Resolver. Progress is reported by the connect and
// disconnect handlers.
func (s *Stream) Connect(host string, port uint16) error {
	if s.state != StateDisconnected {
		return E.Cause(ErrInvalidState, "connect while ", s.state)
	}
	s.attempt++
	s.port = port
	s.handle = nil
	s.logger = s.baseLogger.WithField("remote", host)
	if addr, err := netip.ParseAddr(host); err == nil {
		s.state = StateConnecting
		s.candidates = []netip.Addr{addr.Unmap()}
		s.connectNext(nil)
		return nil
	}
	s.state = StateResolving
	s.logger.Debug("resolving")
	attempt := s.attempt
	resolver := s.options.Resolver
	timeout := s.options.ResolveTimeout
	s.reactor.Async(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		addrs, err := resolver.Resolve(ctx, host)
		cancel()
		return func() {
			s.resolved(attempt, addrs, err)
		}
	})
	return nil
}

func (s *Stream) resolved(attempt uint64, addrs []netip.Addr, err error) {
	if attempt != s.attempt || s.state != StateResolving {
		return
	}
	if err == nil && len(addrs) == 0 {
		err = E.New("no addresses")
	}
	if err != nil {
		reason := err.Error()
		if E.IsTimeout(err) {
			reason = "timeout"
		}
		s.disconnect("Lookup error: "+reason, DisconnectError)
		return
	}
	if s.options.Shuffle {
		rand.Shuffle(len(addrs), func(i, j int) {
			addrs[i], addrs[j] = addrs[j], addrs[i]
		})
	}
	s.candidates = addrs
	s.state = StateConnecting
	s.connectNext(nil)
}

func (s *Stream) connectNext(lastErr error) {
	for len(s.candidates) > 0 {
		addr := s.candidates[0]
		s.candidates = s.candidates[1:]
		target := netip.AddrPortFrom(addr, s.port)
		err := s.dial(target)
		if err == nil {
			s.target = target
			return
		}
		s.logger.Debug("connect ", target, ": ", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = E.New("no addresses")
	}
	s.disconnect("Connection failed: "+lastErr.Error(), DisconnectError)
}

func (s *Stream) dial(target netip.AddrPort) error {
	handle, err := socket.Open(socket.Family(target.Addr()), unix.SOCK_STREAM)
	if err != nil {
		return err
	}
	err = handle.Connect(target)
	if err != nil {
		handle.Close()
		return err
	}
	s.attach(handle)
	return nil
}

func (s *Stream) completeConnect(hangup bool) {
	err := s.handle.PendingError()
	if err == nil && hangup {
		err = E.New("connection hang up")
	}
	if err != nil {
		s.logger.Debug("connect ", s.target, ": ", err)
		s.detach()
		s.handle = nil
		s.connectNext(E.Cause(err, s.target))
		return
	}
	s.state = StateConnected
	s.applyKeepAlive(s.handle)
	s.refreshInterest()
	s.logger.WithField("state", s.state).Debug("connected to ", s.target)
	if s.onConnect != nil {
		s.onConnect()
	}
}

func (s *Stream) applyKeepAlive(handle socketHandle) {
	keepAlive := s.options.KeepAlive
	if !keepAlive.Enabled {
		return
	}
	err := handle.SetKeepAlive(true, keepAlive.Idle, keepAlive.Interval)
	if err != nil {
		s.logger.Warn("set keep-alive: ", err)
	}
}

func (s *Stream) HandleWritable() {
	if s.state == StateConnecting {
		s.completeConnect(false)
		return
	}
	s.conn.HandleWritable()
}

func (s *Stream) HandleError() {
	if s.state == StateConnecting {
		s.completeConnect(true)
		return
	}
	s.conn.HandleError()
}
