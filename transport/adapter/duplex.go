package adapter

import (
	"net/netip"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/transport/connection"
)

var _ connection.Connection = (*Duplex)(nil)

// Duplex reads from one connection and writes to another, presenting them
// as a single connection. reader and writer must be distinct.
type Duplex struct {
	reader connection.Connection
	writer connection.Connection

	connected    bool
	disconnected bool
	requested    bool
	requestKind  connection.DisconnectKind

	onConnect    func()
	onDisconnect connection.DisconnectHandler
	onFlush      func()
}

func NewDuplex(reader connection.Connection, writer connection.Connection) *Duplex {
	d := &Duplex{
		reader: reader,
		writer: writer,
	}
	reader.SetConnectHandler(d.handleConnect)
	writer.SetConnectHandler(d.handleConnect)
	reader.SetDisconnectHandler(func(reason string, kind connection.DisconnectKind) {
		d.handleDisconnect(writer, reason, kind)
	})
	writer.SetDisconnectHandler(func(reason string, kind connection.DisconnectKind) {
		d.handleDisconnect(reader, reason, kind)
	})
	writer.SetFlushHandler(d.handleFlush)
	return d
}

func (d *Duplex) Reader() connection.Connection {
	return d.reader
}

func (d *Duplex) Writer() connection.Connection {
	return d.writer
}

// State is Disconnecting if either side is, otherwise the less advanced
// state of the two.
func (d *Duplex) State() connection.State {
	readerState, writerState := d.reader.State(), d.writer.State()
	if readerState == connection.StateDisconnecting || writerState == connection.StateDisconnecting {
		return connection.StateDisconnecting
	}
	if readerState < writerState {
		return readerState
	}
	return writerState
}

func (d *Duplex) Send(priority connection.Priority, chunks ...[]byte) error {
	return d.writer.Send(priority, chunks...)
}

func (d *Duplex) Disconnect(reason string, kind connection.DisconnectKind) error {
	if d.State() == connection.StateDisconnected {
		return E.Cause(connection.ErrInvalidState, "disconnect while ", connection.StateDisconnected)
	}
	d.requested = true
	d.requestKind = kind
	defer func() {
		d.requested = false
	}()
	var errors []error
	for _, side := range []connection.Connection{d.reader, d.writer} {
		if side.State() != connection.StateDisconnected {
			errors = append(errors, side.Disconnect(reason, kind))
		}
	}
	return E.Errors(errors...)
}

func (d *Duplex) ClearQueue(priority connection.Priority) {
	d.writer.ClearQueue(priority)
}

func (d *Duplex) Queued() int {
	return d.writer.Queued()
}

func (d *Duplex) LocalAddress() (netip.AddrPort, error) {
	return d.writer.LocalAddress()
}

func (d *Duplex) RemoteAddress() (netip.AddrPort, error) {
	return d.writer.RemoteAddress()
}

// SetConnectHandler sets the handler fired once both sides are connected.
// If they already are and it has not fired yet, it fires immediately.
func (d *Duplex) SetConnectHandler(handler func()) {
	d.onConnect = handler
	if handler != nil {
		d.handleConnect()
	}
}

func (d *Duplex) SetDataHandler(handler func(data []byte)) {
	d.reader.SetDataHandler(handler)
}

func (d *Duplex) SetDisconnectHandler(handler connection.DisconnectHandler) {
	d.onDisconnect = handler
}

func (d *Duplex) SetFlushHandler(handler func()) {
	d.onFlush = handler
}

func (d *Duplex) handleConnect() {
	if d.connected || d.reader.State() != connection.StateConnected || d.writer.State() != connection.StateConnected {
		return
	}
	d.connected = true
	d.disconnected = false
	if d.onConnect != nil {
		d.onConnect()
	}
}

func (d *Duplex) handleDisconnect(other connection.Connection, reason string, kind connection.DisconnectKind) {
	if !d.disconnected {
		d.disconnected = true
		d.connected = false
		if d.onDisconnect != nil {
			d.onDisconnect(reason, kind)
		}
	}
	if other.State() == connection.StateDisconnected {
		return
	}
	otherKind := connection.DisconnectRequested
	if d.requested {
		otherKind = d.requestKind
	}
	other.Disconnect(reason, otherKind)
}

func (d *Duplex) handleFlush() {
	if d.onFlush != nil {
		d.onFlush()
	}
}
