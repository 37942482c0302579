//go:build unix

package connection

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/sagernet/sing-reactor/common/reactor"
	"github.com/sagernet/sing-reactor/common/socket"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeHandle scripts send and receive results. Its descriptor is one end of a
// real socket pair so the reactor accepts the registration.
type fakeHandle struct {
	fd int

	// sendLimits bounds successive sends; a negative entry reports would-block.
	// Once exhausted every send is complete.
	sendLimits []int
	sendErr    error
	sent       []string

	reads   [][]byte
	readErr error

	pendingErr error
	keepAlive  bool
	closed     bool
}

func newFakeHandle(t *testing.T) *fakeHandle {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return &fakeHandle{fd: fds[0]}
}

func (h *fakeHandle) FD() int {
	return h.fd
}

func (h *fakeHandle) Send(p []byte) (int, error) {
	if h.sendErr != nil {
		return 0, h.sendErr
	}
	n := len(p)
	if len(h.sendLimits) > 0 {
		limit := h.sendLimits[0]
		h.sendLimits = h.sendLimits[1:]
		if limit < 0 {
			return 0, socket.ErrWouldBlock
		}
		if limit < n {
			n = limit
		}
	}
	h.sent = append(h.sent, string(p[:n]))
	return n, nil
}

func (h *fakeHandle) Receive(p []byte) (int, error) {
	if h.readErr != nil {
		return 0, h.readErr
	}
	if len(h.reads) == 0 {
		return 0, socket.ErrWouldBlock
	}
	n := copy(p, h.reads[0])
	h.reads = h.reads[1:]
	return n, nil
}

func (h *fakeHandle) PendingError() error {
	return h.pendingErr
}

func (h *fakeHandle) LocalAddress() (netip.AddrPort, error) {
	return netip.MustParseAddrPort("127.0.0.1:1000"), nil
}

func (h *fakeHandle) RemoteAddress() (netip.AddrPort, error) {
	return netip.MustParseAddrPort("127.0.0.1:2000"), nil
}

func (h *fakeHandle) SetKeepAlive(enabled bool, idle time.Duration, interval time.Duration) error {
	h.keepAlive = enabled
	return nil
}

func (h *fakeHandle) Close() error {
	if h.closed {
		return net.ErrClosed
	}
	h.closed = true
	return nil
}

type disconnectRecord struct {
	reason string
	kind   DisconnectKind
}

func recordDisconnects(c Connection) *[]disconnectRecord {
	var records []disconnectRecord
	c.SetDisconnectHandler(func(reason string, kind DisconnectKind) {
		records = append(records, disconnectRecord{reason, kind})
	})
	return &records
}

func newTestReactor(t *testing.T) *reactor.Reactor {
	r, err := reactor.New(reactor.WithBackend(reactor.BackendPoll))
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
	})
	return r
}
