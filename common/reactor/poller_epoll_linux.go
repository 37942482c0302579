package reactor

import (
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"

	"golang.org/x/sys/unix"
)

const initialEpollEvents = 64

type epollPoller struct {
	epollFD int
	entries map[int]*registration
	raw     []unix.EpollEvent
	events  []readyEvent
}

func newEpollPoller() (poller, error) {
	epollFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, E.Cause(err, "epoll create")
	}
	return &epollPoller{
		epollFD: epollFD,
		entries: make(map[int]*registration),
		raw:     make([]unix.EpollEvent, initialEpollEvents),
	}, nil
}

func epollEvents(entry *registration) uint32 {
	var events uint32
	if entry.read {
		events |= unix.EPOLLIN
	}
	if entry.write {
		events |= unix.EPOLLOUT
	}
	return events
}

func (p *epollPoller) Add(entry *registration) error {
	event := &unix.EpollEvent{Events: epollEvents(entry), Fd: int32(entry.fd)}
	err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_ADD, entry.fd, event)
	if err != nil {
		return E.Cause(err, "epoll ctl add")
	}
	p.entries[entry.fd] = entry
	return nil
}

func (p *epollPoller) Update(entry *registration) error {
	event := &unix.EpollEvent{Events: epollEvents(entry), Fd: int32(entry.fd)}
	return E.Cause(unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_MOD, entry.fd, event), "epoll ctl mod")
}

func (p *epollPoller) Remove(entry *registration) error {
	delete(p.entries, entry.fd)
	return E.Cause(unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_DEL, entry.fd, nil), "epoll ctl del")
}

func (p *epollPoller) Wait(entries []*registration, timeout time.Duration) ([]readyEvent, error) {
	n, err := unix.EpollWait(p.epollFD, p.raw, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	p.events = p.events[:0]
	for i := 0; i < n; i++ {
		event := p.raw[i]
		entry, loaded := p.entries[int(event.Fd)]
		if !loaded {
			continue
		}
		var mask eventMask
		if event.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			mask |= eventRead
		}
		if event.Events&unix.EPOLLOUT != 0 {
			mask |= eventWrite
		}
		if event.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			mask |= eventError
		}
		p.events = append(p.events, readyEvent{entry, mask})
	}
	if n == len(p.raw) {
		p.raw = make([]unix.EpollEvent, len(p.raw)*2)
	}
	return p.events, nil
}

func (p *epollPoller) Close() error {
	if p.epollFD == -1 {
		return nil
	}
	err := unix.Close(p.epollFD)
	p.epollFD = -1
	return err
}
