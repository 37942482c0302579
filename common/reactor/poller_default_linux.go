package reactor

func newPoller(backend Backend) (poller, Backend, error) {
	switch backend {
	case BackendPoll:
		return newPollPoller(), BackendPoll, nil
	default:
		epoll, err := newEpollPoller()
		return epoll, BackendEpoll, err
	}
}
