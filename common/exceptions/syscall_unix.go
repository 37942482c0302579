//go:build unix

package exceptions

import (
	"io"
	"net"

	"golang.org/x/sys/unix"
)

func IsWouldBlock(err error) bool {
	return IsAny(err, unix.EAGAIN, unix.EWOULDBLOCK)
}

func IsClosed(err error) bool {
	return IsAny(err, io.EOF, net.ErrClosed, unix.EPIPE, unix.ECONNRESET, unix.ENOTCONN, unix.ESHUTDOWN)
}
