//go:build unix

// Package reactor multiplexes socket readiness and timers on a single thread.
//
// Every method except Post and Async must be called from the goroutine running
// Run, or before Run starts.
package reactor

import (
	"context"
	"sync/atomic"
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/log"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Handler receives readiness notifications for one descriptor.
type Handler interface {
	FD() int
	HandleReadable()
	HandleWritable()
	// HandleError reports an error or hang-up condition. It is delivered
	// regardless of interest flags.
	HandleError()
}

type Option func(*Reactor)

func WithBackend(backend Backend) Option {
	return func(r *Reactor) {
		r.backend = backend
	}
}

func WithTimerQueue(timers *TimerQueue) Option {
	return func(r *Reactor) {
		r.timers = timers
	}
}

// WithClock sets the clock of the default timer queue.
func WithClock(c clock.Clock) Option {
	return func(r *Reactor) {
		r.clock = c
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Reactor) {
		r.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(r *Reactor) {
		r.metrics = metrics
	}
}

func withPoller(p poller) Option {
	return func(r *Reactor) {
		r.poller = p
	}
}

type idleHandler struct {
	fn func()
}

type Reactor struct {
	backend Backend
	poller  poller
	clock   clock.Clock
	timers  *TimerQueue
	logger  logrus.FieldLogger
	metrics *Metrics

	registrations map[Handler]*registration
	ordered       []*registration
	orderCounter  uint64
	nonDaemon     int

	idle      []*idleHandler
	idleIndex int

	wakeup  *wakeup
	pending atomic.Int64
	running bool
}

// New creates a reactor. Failing to create the multiplexing primitive or the
// wakeup pair is the only error it reports.
func New(options ...Option) (*Reactor, error) {
	r := &Reactor{
		registrations: make(map[Handler]*registration),
	}
	for _, option := range options {
		option(r)
	}
	if r.logger == nil {
		r.logger = log.NewLogger("reactor")
	}
	if r.timers == nil {
		r.timers = NewTimerQueue(r.clock)
	}
	if r.poller == nil {
		var err error
		r.poller, r.backend, err = newPoller(r.backend)
		if err != nil {
			return nil, err
		}
	}
	wakeup, err := newWakeup(r)
	if err != nil {
		r.poller.Close()
		return nil, err
	}
	r.wakeup = wakeup
	r.Register(wakeup, true)
	r.SetReadInterest(wakeup, true)
	r.logger.Debug("created with backend ", r.backend)
	return r, nil
}

func (r *Reactor) Backend() Backend {
	return r.backend
}

func (r *Reactor) Timers() *TimerQueue {
	return r.timers
}

func (r *Reactor) Logger() logrus.FieldLogger {
	return r.logger
}

// Register adds h with both interests off. Daemon handlers do not keep Run
// alive. Registering an invalid descriptor or the same handler twice panics.
func (r *Reactor) Register(h Handler, daemon bool) {
	fd := h.FD()
	if fd < 0 {
		panic("reactor: register invalid descriptor")
	}
	if _, loaded := r.registrations[h]; loaded {
		panic("reactor: handler already registered")
	}
	r.orderCounter++
	entry := &registration{
		handler: h,
		fd:      fd,
		order:   r.orderCounter,
		daemon:  daemon,
	}
	err := r.poller.Add(entry)
	if err != nil {
		panic("reactor: register descriptor: " + err.Error())
	}
	r.registrations[h] = entry
	r.ordered = append(r.ordered, entry)
	if !daemon {
		r.nonDaemon++
	}
	r.metrics.registered(1)
}

// Unregister clears both interests and removes h. Unknown handlers panic.
func (r *Reactor) Unregister(h Handler) {
	entry := r.mustLoad(h)
	r.SetReadInterest(h, false)
	r.SetWriteInterest(h, false)
	err := r.poller.Remove(entry)
	if err != nil {
		r.logger.Warn("unregister fd ", entry.fd, ": ", err)
	}
	entry.removed = true
	delete(r.registrations, h)
	for index, ordered := range r.ordered {
		if ordered == entry {
			copy(r.ordered[index:], r.ordered[index+1:])
			r.ordered[len(r.ordered)-1] = nil
			r.ordered = r.ordered[:len(r.ordered)-1]
			break
		}
	}
	if !entry.daemon {
		r.nonDaemon--
	}
	r.metrics.registered(-1)
}

func (r *Reactor) Registered(h Handler) bool {
	_, loaded := r.registrations[h]
	return loaded
}

func (r *Reactor) mustLoad(h Handler) *registration {
	entry, loaded := r.registrations[h]
	if !loaded {
		panic("reactor: handler not registered")
	}
	return entry
}

func (r *Reactor) SetReadInterest(h Handler, enabled bool) {
	entry := r.mustLoad(h)
	if entry.read == enabled {
		return
	}
	entry.read = enabled
	r.updateInterest(entry)
}

func (r *Reactor) SetWriteInterest(h Handler, enabled bool) {
	entry := r.mustLoad(h)
	if entry.write == enabled {
		return
	}
	entry.write = enabled
	r.updateInterest(entry)
}

func (r *Reactor) updateInterest(entry *registration) {
	r.metrics.interestUpdated()
	err := r.poller.Update(entry)
	if err != nil {
		r.logger.Warn("update interest of fd ", entry.fd, ": ", err)
	}
}

// AddIdleHandler registers fn to run, round-robin with other idle handlers,
// whenever a wait returns without events.
func (r *Reactor) AddIdleHandler(fn func()) (remove func()) {
	handler := &idleHandler{fn}
	r.idle = append(r.idle, handler)
	return func() {
		for index, idle := range r.idle {
			if idle == handler {
				r.idle = append(r.idle[:index], r.idle[index+1:]...)
				return
			}
		}
	}
}

// Post schedules fn on the reactor thread. It is safe for concurrent use.
// Posted callbacks only run while the loop is alive; use Async to keep it so.
func (r *Reactor) Post(fn func()) {
	r.wakeup.post(fn)
}

// Async runs work on its own goroutine and keeps Run alive until the function
// it returns has been executed on the reactor thread.
func (r *Reactor) Async(work func() func()) {
	r.pending.Add(1)
	go func() {
		deliver := work()
		r.Post(func() {
			r.pending.Add(-1)
			if deliver != nil {
				deliver()
			}
		})
	}()
}

// Run dispatches events until no non-daemon handler, timer or asynchronous
// operation is left, or ctx is done. Socket errors never surface here; only a
// failing multiplexing primitive does.
func (r *Reactor) Run(ctx context.Context) error {
	if r.running {
		panic("reactor: already running")
	}
	r.running = true
	defer func() {
		r.running = false
	}()
	stop := context.AfterFunc(ctx, r.wakeup.notify)
	defer stop()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		timeout, alive := r.waitTimeout()
		if !alive {
			return nil
		}
		events, err := r.poller.Wait(r.ordered, timeout)
		if err != nil {
			r.logger.Error("wait: ", err)
			return err
		}
		if len(events) > 0 {
			r.dispatch(events)
		} else {
			r.runIdle()
		}
		r.metrics.timersFired(r.timers.FireDue())
	}
}

func (r *Reactor) waitTimeout() (time.Duration, bool) {
	hasSockets := r.nonDaemon > 0
	if hasSockets && len(r.idle) > 0 {
		return 0, true
	}
	if r.timers.Waiting() {
		return r.timers.Remaining(), true
	}
	if hasSockets || r.pending.Load() > 0 {
		return -1, true
	}
	return 0, false
}

// dispatch delivers exactly one event: the earliest registered ready handler,
// readable before writable before error. Handlers may change the registration
// set, so the rest of the snapshot is discarded.
func (r *Reactor) dispatch(events []readyEvent) {
	var selected *readyEvent
	for index := range events {
		event := &events[index]
		if event.registration.removed {
			continue
		}
		if selected == nil || event.registration.order < selected.registration.order {
			selected = event
		}
	}
	if selected == nil {
		return
	}
	entry := selected.registration
	switch {
	case selected.events&eventRead != 0 && entry.read:
		r.metrics.dispatched("read")
		entry.handler.HandleReadable()
	case selected.events&eventWrite != 0 && entry.write:
		r.metrics.dispatched("write")
		entry.handler.HandleWritable()
	case selected.events&eventError != 0:
		r.metrics.dispatched("error")
		entry.handler.HandleError()
	}
}

func (r *Reactor) runIdle() {
	if len(r.idle) == 0 {
		return
	}
	if r.idleIndex >= len(r.idle) {
		r.idleIndex = 0
	}
	handler := r.idle[r.idleIndex]
	r.idleIndex++
	r.metrics.idleRun()
	handler.fn()
}

// Close releases the backend and the wakeup pair. Registered handlers are
// not closed.
func (r *Reactor) Close() error {
	if r.Registered(r.wakeup) {
		r.Unregister(r.wakeup)
	}
	return E.Errors(r.wakeup.Close(), r.poller.Close())
}
