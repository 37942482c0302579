//go:build unix

package reactor

import (
	"sync"

	E "github.com/sagernet/sing-reactor/common/exceptions"

	"golang.org/x/sys/unix"
)

// wakeup is the daemon socket pair that carries posted callbacks onto the
// reactor thread.
type wakeup struct {
	reactor *Reactor
	fds     [2]int
	access  sync.Mutex
	posted  []func()
	running []func()
	buffer  [64]byte
	closed  bool
}

func newWakeup(reactor *Reactor) (*wakeup, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, E.Cause(err, "create wakeup socket pair")
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		err = unix.SetNonblock(fd, true)
		if err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, E.Cause(err, "set non-blocking")
		}
	}
	return &wakeup{reactor: reactor, fds: fds}, nil
}

func (w *wakeup) FD() int {
	return w.fds[0]
}

// post drops fn once the pair is closed.
func (w *wakeup) post(fn func()) {
	w.access.Lock()
	defer w.access.Unlock()
	if w.closed {
		return
	}
	w.posted = append(w.posted, fn)
	w.write()
}

func (w *wakeup) notify() {
	w.access.Lock()
	defer w.access.Unlock()
	if w.closed {
		return
	}
	w.write()
}

func (w *wakeup) write() {
	_, err := unix.Write(w.fds[1], []byte{0})
	if err != nil && !E.IsWouldBlock(err) {
		w.reactor.logger.Warn("write wakeup: ", err)
	}
}

func (w *wakeup) HandleReadable() {
	for {
		n, err := unix.Read(w.fds[0], w.buffer[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(w.buffer) {
			break
		}
	}
	w.access.Lock()
	w.running, w.posted = w.posted, w.running[:0]
	w.access.Unlock()
	for index, fn := range w.running {
		w.running[index] = nil
		fn()
	}
}

func (w *wakeup) HandleWritable() {
}

func (w *wakeup) HandleError() {
	w.reactor.logger.Error("wakeup socket failed")
}

func (w *wakeup) Close() error {
	w.access.Lock()
	defer w.access.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.posted = nil
	return E.Errors(unix.Close(w.fds[0]), unix.Close(w.fds[1]))
}
