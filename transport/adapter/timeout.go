package adapter

import (
	"time"

	"github.com/sagernet/sing-reactor/common/log"
	"github.com/sagernet/sing-reactor/common/reactor"
	"github.com/sagernet/sing-reactor/transport/connection"

	"github.com/sirupsen/logrus"
)

var _ connection.Connection = (*Timeout)(nil)

// Timeout disconnects a connection that saw no inbound data for the idle
// timeout, unless an idle handler takes over.
type Timeout struct {
	connection.Connection
	timers *reactor.TimerQueue
	task   *reactor.Task
	logger logrus.FieldLogger

	timeout      time.Duration
	lastActivity time.Time

	onIdle       func()
	onConnect    func()
	onData       func(data []byte)
	onDisconnect connection.DisconnectHandler
	onFlush      func()
}

func NewTimeout(conn connection.Connection, timers *reactor.TimerQueue) *Timeout {
	t := &Timeout{
		Connection: conn,
		timers:     timers,
		logger:     log.NewLogger("timeout"),
	}
	t.task = timers.NewTask(t.expire)
	conn.SetConnectHandler(t.handleConnect)
	conn.SetDisconnectHandler(t.handleDisconnect)
	conn.SetFlushHandler(t.handleFlush)
	if notifier, isNotifier := conn.(connection.CloseNotifier); isNotifier {
		notifier.SetCloseHandler(t.handleClose)
	}
	return t
}

// SetIdleTimeout arms the timer from now. Zero disarms it.
func (t *Timeout) SetIdleTimeout(timeout time.Duration) {
	t.timeout = timeout
	if timeout <= 0 {
		t.task.Stop()
		return
	}
	t.touch()
	if t.State() != connection.StateDisconnected {
		t.task.Reset(timeout)
	}
}

func (t *Timeout) IdleTimeout() time.Duration {
	return t.timeout
}

// SetIdleHandler replaces the default disconnect on expiry. The timer is
// re-armed after the handler returns.
func (t *Timeout) SetIdleHandler(handler func()) {
	t.onIdle = handler
}

func (t *Timeout) SetConnectHandler(handler func()) {
	t.onConnect = handler
}

func (t *Timeout) SetDataHandler(handler func(data []byte)) {
	t.onData = handler
	if handler == nil {
		t.Connection.SetDataHandler(nil)
		return
	}
	t.Connection.SetDataHandler(t.handleData)
}

func (t *Timeout) SetDisconnectHandler(handler connection.DisconnectHandler) {
	t.onDisconnect = handler
}

func (t *Timeout) SetFlushHandler(handler func()) {
	t.onFlush = handler
}

func (t *Timeout) touch() {
	t.lastActivity = t.timers.Clock().Now()
}

func (t *Timeout) expire() {
	state := t.State()
	switch state {
	case connection.StateDisconnected:
		return
	case connection.StateDisconnecting:
		t.logger.Debug("time-out while flushing")
		t.Disconnect("Time-out", connection.DisconnectError)
		return
	}
	if t.timeout <= 0 {
		return
	}
	idle := t.timers.Clock().Since(t.lastActivity)
	if idle < t.timeout {
		t.task.Reset(t.timeout - idle)
		return
	}
	if t.onIdle != nil {
		t.onIdle()
		if t.timeout > 0 && t.State() != connection.StateDisconnected && !t.task.Active() {
			t.touch()
			t.task.Reset(t.timeout)
		}
		return
	}
	t.logger.Debug("idle for ", idle)
	t.Disconnect("Time-out", connection.DisconnectError)
}

func (t *Timeout) handleConnect() {
	t.touch()
	if t.timeout > 0 && !t.task.Active() {
		t.task.Reset(t.timeout)
	}
	if t.onConnect != nil {
		t.onConnect()
	}
}

func (t *Timeout) handleData(data []byte) {
	t.touch()
	if t.onData != nil {
		t.onData(data)
	}
}

func (t *Timeout) handleDisconnect(reason string, kind connection.DisconnectKind) {
	if t.State() != connection.StateDisconnecting {
		t.task.Stop()
	}
	if t.onDisconnect != nil {
		t.onDisconnect(reason, kind)
	}
}

func (t *Timeout) handleClose() {
	t.task.Stop()
}

func (t *Timeout) handleFlush() {
	if t.State() == connection.StateDisconnecting {
		t.task.Stop()
	}
	if t.onFlush != nil {
		t.onFlush()
	}
}
