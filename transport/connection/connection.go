// Package connection implements reactor-driven connections with a lifecycle
// state machine and a prioritized outbound queue.
package connection

import (
	"net/netip"

	E "github.com/sagernet/sing-reactor/common/exceptions"
)

var ErrInvalidState = E.New("invalid connection state")

type State uint8

const (
	StateDisconnected State = iota
	StateResolving
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

type DisconnectKind uint8

const (
	// DisconnectRequested is an application request; queued data is flushed first.
	DisconnectRequested DisconnectKind = iota
	// DisconnectGraceful is an orderly close by the peer.
	DisconnectGraceful
	// DisconnectError is a transport failure; queued data is dropped.
	DisconnectError
)

func (k DisconnectKind) String() string {
	switch k {
	case DisconnectRequested:
		return "requested"
	case DisconnectGraceful:
		return "graceful"
	case DisconnectError:
		return "error"
	default:
		return "unknown"
	}
}

// Priority orders outbound chunks. Larger values are sent first.
type Priority int

const (
	PriorityLowest  Priority = 0
	PriorityDefault Priority = 2
	PriorityHighest Priority = 4

	priorityLevels = int(PriorityHighest) + 1
)

func (p Priority) Valid() bool {
	return p >= PriorityLowest && p <= PriorityHighest
}

type DisconnectHandler = func(reason string, kind DisconnectKind)

// Connection is implemented by Stream, Datagram and the adapters wrapping them.
// Implementations are driven by a single reactor thread and are not safe for
// concurrent use.
type Connection interface {
	State() State
	// Send queues chunks at priority. The connection takes ownership of the
	// chunks; callers must not modify them afterwards.
	Send(priority Priority, chunks ...[]byte) error
	Disconnect(reason string, kind DisconnectKind) error
	// ClearQueue drops unsent chunks at priority, keeping a chunk whose
	// transmission already started.
	ClearQueue(priority Priority)
	// Queued returns the number of queued bytes not yet handed to the kernel.
	Queued() int
	LocalAddress() (netip.AddrPort, error)
	RemoteAddress() (netip.AddrPort, error)
	SetConnectHandler(handler func())
	// SetDataHandler sets the inbound handler. Without one the connection
	// does not read at all.
	SetDataHandler(handler func(data []byte))
	SetDisconnectHandler(handler DisconnectHandler)
	SetFlushHandler(handler func())
}

// CloseNotifier is implemented by connections that report when their socket
// is released, including a deferred close cut short by an error, which fires
// no second disconnect handler.
type CloseNotifier interface {
	SetCloseHandler(handler func())
}
