package reactor

import (
	"math"
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
)

type Backend uint8

const (
	// BackendDefault picks epoll on Linux and poll elsewhere.
	BackendDefault Backend = iota
	// BackendPoll rebuilds a readiness set from every registration on each wait.
	BackendPoll
	// BackendEpoll keeps interest in the kernel and updates it on change.
	BackendEpoll
)

func (b Backend) String() string {
	switch b {
	case BackendPoll:
		return "poll"
	case BackendEpoll:
		return "epoll"
	default:
		return "default"
	}
}

func ParseBackend(name string) (Backend, error) {
	switch name {
	case "", "default":
		return BackendDefault, nil
	case "poll":
		return BackendPoll, nil
	case "epoll":
		return BackendEpoll, nil
	default:
		return BackendDefault, E.New("unknown reactor backend: ", name)
	}
}

type eventMask uint8

const (
	eventRead eventMask = 1 << iota
	eventWrite
	eventError
)

type readyEvent struct {
	registration *registration
	events       eventMask
}

type registration struct {
	handler Handler
	fd      int
	order   uint64
	read    bool
	write   bool
	daemon  bool
	removed bool
}

// poller is the multiplexing primitive behind a Reactor.
type poller interface {
	Add(entry *registration) error
	Update(entry *registration) error
	Remove(entry *registration) error
	// Wait blocks up to timeout (negative: forever) and returns ready
	// registrations. An interrupted wait returns no events and no error.
	Wait(entries []*registration, timeout time.Duration) ([]readyEvent, error)
	Close() error
}

// timeoutMillis rounds up to whole milliseconds and clamps to the C int range
// of poll and epoll_wait.
func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	millis := (timeout + time.Millisecond - 1) / time.Millisecond
	if millis > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(millis)
}
