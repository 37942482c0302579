//go:build unix && !linux

package reactor

import E "github.com/sagernet/sing-reactor/common/exceptions"

func newPoller(backend Backend) (poller, Backend, error) {
	switch backend {
	case BackendEpoll:
		return nil, backend, E.New("epoll backend is only available on linux")
	default:
		return newPollPoller(), BackendPoll, nil
	}
}
