//go:build unix

package connection

import (
	"net/netip"

	"github.com/sagernet/sing-reactor/common/reactor"
	"github.com/sagernet/sing-reactor/common/socket"

	"golang.org/x/sys/unix"
)

var _ Connection = (*Datagram)(nil)

// Datagram is a UDP socket connected to a fixed peer. Every queued chunk is
// sent as one datagram and every received datagram is delivered as is,
// including empty ones.
type Datagram struct {
	conn
}

func DialDatagram(r *reactor.Reactor, peer netip.AddrPort, options Options) (*Datagram, error) {
	peer = netip.AddrPortFrom(peer.Addr().Unmap(), peer.Port())
	handle, err := socket.Open(socket.Family(peer.Addr()), unix.SOCK_DGRAM)
	if err != nil {
		return nil, err
	}
	if options.BindAddress.IsValid() {
		err = handle.Bind(options.BindAddress)
		if err != nil {
			handle.Close()
			return nil, err
		}
	}
	err = handle.Connect(peer)
	if err != nil {
		handle.Close()
		return nil, err
	}
	return newDatagram(r, handle, options), nil
}

func newDatagram(r *reactor.Reactor, handle socketHandle, options Options) *Datagram {
	d := &Datagram{}
	d.init(r, d, options, true)
	d.state = StateConnected
	d.attach(handle)
	if remote, err := handle.RemoteAddress(); err == nil {
		d.logger = d.baseLogger.WithField("remote", remote)
	}
	return d
}
