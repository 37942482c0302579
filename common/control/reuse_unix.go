//go:build unix

package control

import "golang.org/x/sys/unix"

func ReuseAddr() Func {
	return func(fd int) error {
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}
}
