//go:build unix

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

const initialPollCapacity = 64

type pollPoller struct {
	fds    []unix.PollFd
	events []readyEvent
}

func newPollPoller() *pollPoller {
	return &pollPoller{
		fds: make([]unix.PollFd, 0, initialPollCapacity),
	}
}

func (p *pollPoller) Add(entry *registration) error {
	return nil
}

func (p *pollPoller) Update(entry *registration) error {
	return nil
}

func (p *pollPoller) Remove(entry *registration) error {
	return nil
}

func (p *pollPoller) Wait(entries []*registration, timeout time.Duration) ([]readyEvent, error) {
	p.fds = p.fds[:0]
	for _, entry := range entries {
		var events int16
		if entry.read {
			events |= unix.POLLIN
		}
		if entry.write {
			events |= unix.POLLOUT
		}
		p.fds = append(p.fds, unix.PollFd{Fd: int32(entry.fd), Events: events})
	}
	n, err := unix.Poll(p.fds, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	p.events = p.events[:0]
	if n == 0 {
		return p.events, nil
	}
	for index, pollFD := range p.fds {
		if pollFD.Revents == 0 {
			continue
		}
		var mask eventMask
		if pollFD.Revents&(unix.POLLIN|unix.POLLHUP) != 0 {
			mask |= eventRead
		}
		if pollFD.Revents&unix.POLLOUT != 0 {
			mask |= eventWrite
		}
		if pollFD.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			mask |= eventError
		}
		p.events = append(p.events, readyEvent{entries[index], mask})
	}
	return p.events, nil
}

func (p *pollPoller) Close() error {
	return nil
}
