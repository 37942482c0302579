// Package adapter stacks framing, idle timeouts and duplexing on top of a
// connection.Connection.
package adapter

import (
	"bytes"

	"github.com/sagernet/sing-reactor/common/log"
	"github.com/sagernet/sing-reactor/transport/connection"

	"github.com/sirupsen/logrus"
)

var _ connection.Connection = (*Line)(nil)

// Line splits inbound data at a delimiter. The data handler receives one
// line per call, without the delimiter.
type Line struct {
	connection.Connection
	delimiter []byte
	maxLength int
	logger    logrus.FieldLogger

	buffer  []byte
	scanned int

	onLine       func(line []byte)
	onDisconnect connection.DisconnectHandler
}

// NewLine wraps conn. An unterminated line longer than maxLength disconnects
// with an error; zero means unlimited.
func NewLine(conn connection.Connection, delimiter []byte, maxLength int) *Line {
	if len(delimiter) == 0 {
		delimiter = []byte{'\n'}
	}
	l := &Line{
		Connection: conn,
		delimiter:  delimiter,
		maxLength:  maxLength,
		logger:     log.NewLogger("line"),
	}
	conn.SetDisconnectHandler(l.handleDisconnect)
	return l
}

func (l *Line) SetDataHandler(handler func(line []byte)) {
	l.onLine = handler
	if handler == nil {
		l.Connection.SetDataHandler(nil)
		return
	}
	l.Connection.SetDataHandler(l.handleData)
}

func (l *Line) SetDisconnectHandler(handler connection.DisconnectHandler) {
	l.onDisconnect = handler
}

// SendLine queues line followed by the delimiter as a single chunk.
func (l *Line) SendLine(priority connection.Priority, line []byte) error {
	chunk := make([]byte, 0, len(line)+len(l.delimiter))
	chunk = append(chunk, line...)
	chunk = append(chunk, l.delimiter...)
	return l.Send(priority, chunk)
}

// Buffered returns the length of the pending unterminated line.
func (l *Line) Buffered() int {
	return len(l.buffer)
}

func (l *Line) handleData(data []byte) {
	l.buffer = append(l.buffer, data...)
	var start int
	for l.onLine != nil && l.State() == connection.StateConnected {
		index := l.next(start)
		if index < 0 {
			break
		}
		line := make([]byte, index-start)
		copy(line, l.buffer[start:index])
		start = index + len(l.delimiter)
		l.scanned = start
		l.onLine(line)
	}
	if l.State() != connection.StateConnected {
		l.reset()
		return
	}
	l.buffer = l.buffer[:copy(l.buffer, l.buffer[start:])]
	l.scanned -= start
	if l.scanned < 0 {
		l.scanned = 0
	}
	if l.maxLength > 0 && len(l.buffer) > l.maxLength {
		l.logger.Warn("line exceeds ", l.maxLength, " bytes")
		l.reset()
		l.Disconnect("Line too long", connection.DisconnectError)
	}
}

// next returns the index of the delimiter ending the line at start, or -1.
// Bytes already searched are not searched again.
func (l *Line) next(start int) int {
	from := l.scanned
	if from < start {
		from = start
	}
	var index int
	if len(l.delimiter) == 1 {
		index = bytes.IndexByte(l.buffer[from:], l.delimiter[0])
	} else {
		index = bytes.Index(l.buffer[from:], l.delimiter)
	}
	if index < 0 {
		// a delimiter may straddle the next chunk
		l.scanned = len(l.buffer) - len(l.delimiter) + 1
		if l.scanned < start {
			l.scanned = start
		}
		return -1
	}
	return from + index
}

func (l *Line) reset() {
	l.buffer = l.buffer[:0]
	l.scanned = 0
}

func (l *Line) handleDisconnect(reason string, kind connection.DisconnectKind) {
	l.reset()
	if l.onDisconnect != nil {
		l.onDisconnect(reason, kind)
	}
}
