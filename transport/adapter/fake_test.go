package adapter

import (
	"net/netip"

	"github.com/sagernet/sing-reactor/transport/connection"
)

type disconnectRecord struct {
	reason string
	kind   connection.DisconnectKind
}

// fakeConn follows the connection state rules without a socket. pending
// simulates unsent outbound data.
type fakeConn struct {
	state       connection.State
	pending     int
	sent        []string
	disconnects []disconnectRecord

	onConnect    func()
	onData       func(data []byte)
	onDisconnect connection.DisconnectHandler
	onFlush      func()
	onClose      func()
}

func newConnectedFake() *fakeConn {
	return &fakeConn{state: connection.StateConnected}
}

func (c *fakeConn) State() connection.State {
	return c.state
}

func (c *fakeConn) Send(priority connection.Priority, chunks ...[]byte) error {
	if c.state != connection.StateConnected {
		return connection.ErrInvalidState
	}
	for _, chunk := range chunks {
		c.sent = append(c.sent, string(chunk))
	}
	return nil
}

func (c *fakeConn) Disconnect(reason string, kind connection.DisconnectKind) error {
	switch c.state {
	case connection.StateDisconnected:
		return connection.ErrInvalidState
	case connection.StateDisconnecting:
		if kind != connection.DisconnectRequested {
			c.close()
		}
		return nil
	}
	c.disconnects = append(c.disconnects, disconnectRecord{reason, kind})
	if kind == connection.DisconnectRequested && c.pending > 0 {
		c.state = connection.StateDisconnecting
	} else {
		c.close()
	}
	if c.onDisconnect != nil {
		c.onDisconnect(reason, kind)
	}
	return nil
}

func (c *fakeConn) ClearQueue(priority connection.Priority) {
}

func (c *fakeConn) Queued() int {
	return c.pending
}

func (c *fakeConn) LocalAddress() (netip.AddrPort, error) {
	return netip.MustParseAddrPort("127.0.0.1:1000"), nil
}

func (c *fakeConn) RemoteAddress() (netip.AddrPort, error) {
	return netip.MustParseAddrPort("127.0.0.1:2000"), nil
}

func (c *fakeConn) SetConnectHandler(handler func()) {
	c.onConnect = handler
}

func (c *fakeConn) SetDataHandler(handler func(data []byte)) {
	c.onData = handler
}

func (c *fakeConn) SetDisconnectHandler(handler connection.DisconnectHandler) {
	c.onDisconnect = handler
}

func (c *fakeConn) SetFlushHandler(handler func()) {
	c.onFlush = handler
}

func (c *fakeConn) SetCloseHandler(handler func()) {
	c.onClose = handler
}

func (c *fakeConn) close() {
	c.pending = 0
	c.state = connection.StateDisconnected
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *fakeConn) connect() {
	c.state = connection.StateConnected
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *fakeConn) deliver(data ...string) {
	for _, chunk := range data {
		if c.onData == nil {
			return
		}
		c.onData([]byte(chunk))
	}
}

func (c *fakeConn) flush() {
	c.pending = 0
	if c.onFlush != nil {
		c.onFlush()
	}
	if c.state == connection.StateDisconnecting {
		c.close()
	}
}
