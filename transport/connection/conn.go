//go:build unix

package connection

import (
	"errors"
	"net/netip"
	"time"

	"github.com/sagernet/sing-reactor/common/buf"
	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/log"
	"github.com/sagernet/sing-reactor/common/reactor"
	"github.com/sagernet/sing-reactor/common/socket"

	"github.com/sirupsen/logrus"
)

// socketHandle is the subset of *socket.Handle a connection drives.
type socketHandle interface {
	FD() int
	Send(p []byte) (int, error)
	Receive(p []byte) (int, error)
	PendingError() error
	LocalAddress() (netip.AddrPort, error)
	RemoteAddress() (netip.AddrPort, error)
	SetKeepAlive(enabled bool, idle time.Duration, interval time.Duration) error
	Close() error
}

var _ CloseNotifier = (*conn)(nil)

// conn holds the state machine shared by Stream and Datagram.
type conn struct {
	reactor  *reactor.Reactor
	self     reactor.Handler
	options  Options
	logger   logrus.FieldLogger
	datagram bool

	baseLogger logrus.FieldLogger

	handle     socketHandle
	registered bool
	state      State
	queue      outboundQueue
	readBuffer []byte

	onConnect    func()
	onData       func(data []byte)
	onDisconnect DisconnectHandler
	onFlush      func()
	onClose      func()
}

func (c *conn) init(r *reactor.Reactor, self reactor.Handler, options Options, datagram bool) {
	c.reactor = r
	c.self = self
	c.options = options.normalize()
	c.datagram = datagram
	c.logger = c.options.Logger
	if c.logger == nil {
		c.logger = log.NewLogger("connection")
	}
	c.baseLogger = c.logger
}

func (c *conn) FD() int {
	if c.handle == nil {
		return -1
	}
	return c.handle.FD()
}

func (c *conn) State() State {
	return c.state
}

func (c *conn) Queued() int {
	return c.queue.bytes
}

func (c *conn) LocalAddress() (netip.AddrPort, error) {
	if c.handle == nil {
		return netip.AddrPort{}, E.Cause(ErrInvalidState, "no socket")
	}
	return c.handle.LocalAddress()
}

func (c *conn) RemoteAddress() (netip.AddrPort, error) {
	if c.handle == nil {
		return netip.AddrPort{}, E.Cause(ErrInvalidState, "no socket")
	}
	return c.handle.RemoteAddress()
}

func (c *conn) SetConnectHandler(handler func()) {
	c.onConnect = handler
}

func (c *conn) SetDataHandler(handler func(data []byte)) {
	c.onData = handler
	c.refreshInterest()
}

func (c *conn) SetDisconnectHandler(handler DisconnectHandler) {
	c.onDisconnect = handler
}

func (c *conn) SetFlushHandler(handler func()) {
	c.onFlush = handler
}

func (c *conn) SetCloseHandler(handler func()) {
	c.onClose = handler
}

func (c *conn) Send(priority Priority, chunks ...[]byte) error {
	if c.state != StateConnected {
		return E.Cause(ErrInvalidState, "send while ", c.state)
	}
	if !priority.Valid() {
		return E.New("invalid priority: ", int(priority))
	}
	var queued bool
	for _, chunk := range chunks {
		if len(chunk) == 0 && !c.datagram {
			continue
		}
		c.queue.push(priority, chunk)
		queued = true
	}
	if queued {
		c.reactor.SetWriteInterest(c.self, true)
	}
	return nil
}

func (c *conn) ClearQueue(priority Priority) {
	if !priority.Valid() {
		return
	}
	c.queue.clear(priority)
	if c.state == StateDisconnecting && c.queue.empty() {
		c.closeNow()
		return
	}
	c.refreshInterest()
}

func (c *conn) Disconnect(reason string, kind DisconnectKind) error {
	switch c.state {
	case StateResolving, StateConnecting, StateConnected:
	case StateDisconnecting:
		if kind == DisconnectRequested {
			return nil
		}
	default:
		return E.Cause(ErrInvalidState, "disconnect while ", c.state)
	}
	c.disconnect(reason, kind)
	return nil
}

func (c *conn) disconnect(reason string, kind DisconnectKind) {
	if c.state == StateDisconnecting {
		c.logger.Debug("drop ", c.queue.bytes, " queued bytes: ", reason)
		c.closeNow()
		return
	}
	if kind == DisconnectRequested && !c.queue.empty() {
		c.state = StateDisconnecting
		c.logger.WithField("state", c.state).Debug("flushing ", c.queue.bytes, " bytes before close")
		c.fireDisconnect(reason, kind)
		c.refreshInterest()
		return
	}
	c.closeNow()
	c.fireDisconnect(reason, kind)
}

func (c *conn) fireDisconnect(reason string, kind DisconnectKind) {
	c.logger.WithFields(logrus.Fields{
		"state": c.state,
		"kind":  kind,
	}).Debug("disconnect: ", reason)
	if c.onDisconnect != nil {
		c.onDisconnect(reason, kind)
	}
}

func (c *conn) fail(err error) {
	if E.IsClosed(err) {
		c.logger.Debug("closed by peer: ", err)
	} else {
		c.logger.Warn(err)
	}
	c.disconnect(err.Error(), DisconnectError)
}

func (c *conn) attach(handle socketHandle) {
	c.handle = handle
	c.reactor.Register(c.self, false)
	c.registered = true
	if c.readBuffer == nil {
		c.readBuffer = buf.Get(c.options.ReadBufferSize)
	}
	c.refreshInterest()
}

// detach unregisters and closes the socket without touching the state.
func (c *conn) detach() {
	if c.registered {
		c.reactor.Unregister(c.self)
		c.registered = false
	}
	if c.handle != nil {
		err := c.handle.Close()
		if err != nil {
			c.logger.Debug("close socket: ", err)
		}
	}
}

func (c *conn) closeNow() {
	c.queue.reset()
	c.detach()
	if c.readBuffer != nil {
		buf.Put(c.readBuffer)
		c.readBuffer = nil
	}
	c.state = StateDisconnected
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *conn) refreshInterest() {
	if !c.registered {
		return
	}
	c.reactor.SetWriteInterest(c.self, c.state == StateConnecting || !c.queue.empty())
	c.reactor.SetReadInterest(c.self, c.state == StateConnected && c.onData != nil)
}

func (c *conn) HandleReadable() {
	n, err := c.handle.Receive(c.readBuffer)
	if errors.Is(err, socket.ErrWouldBlock) {
		return
	}
	if err != nil {
		c.fail(err)
		return
	}
	if n == 0 && !c.datagram {
		c.disconnect("Connection closed by peer", DisconnectGraceful)
		return
	}
	if c.state != StateConnected || c.onData == nil {
		return
	}
	c.onData(c.takeRead(n))
}

func (c *conn) takeRead(n int) []byte {
	if n <= smallReadSize {
		data := make([]byte, n)
		copy(data, c.readBuffer[:n])
		return data
	}
	data := c.readBuffer[:n:n]
	c.readBuffer = buf.Get(c.options.ReadBufferSize)
	return data
}

func (c *conn) HandleWritable() {
	switch c.state {
	case StateConnected, StateDisconnecting:
	default:
		return
	}
	if c.queue.empty() {
		c.refreshInterest()
		return
	}
	for {
		priority, data, loaded := c.queue.front()
		if !loaded {
			break
		}
		n, err := c.handle.Send(data)
		if errors.Is(err, socket.ErrWouldBlock) {
			return
		}
		if err != nil {
			c.fail(err)
			return
		}
		if c.datagram && n < len(data) {
			c.disconnect(E.New("Short datagram send: ", n, " of ", len(data), " bytes").Error(), DisconnectError)
			return
		}
		if !c.queue.advance(priority, n) {
			return
		}
	}
	c.refreshInterest()
	if c.onFlush != nil {
		c.onFlush()
	}
	if c.state == StateDisconnecting {
		c.logger.Debug("flushed, closing")
		c.closeNow()
	}
}

func (c *conn) HandleError() {
	err := c.handle.PendingError()
	if err == nil {
		c.disconnect("Connection closed by peer", DisconnectGraceful)
		return
	}
	c.fail(err)
}
