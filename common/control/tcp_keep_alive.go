//go:build unix

package control

import (
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"

	"golang.org/x/sys/unix"
)

var errKeepAliveTunables = E.New("keep-alive tunables not supported")

// SetKeepAlive toggles SO_KEEPALIVE and, when enabled, tunes the idle time and
// probe interval. Systems without the tunables keep the plain option.
func SetKeepAlive(enabled bool, idle time.Duration, interval time.Duration) Func {
	return func(fd int) error {
		if !enabled {
			return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 0)
		}
		err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		if err != nil {
			return E.Cause(err, "set SO_KEEPALIVE")
		}
		if idle <= 0 && interval <= 0 {
			return nil
		}
		err = setKeepAlivePeriod(fd, idle, interval)
		if err == errKeepAliveTunables || E.IsAny(err, unix.ENOPROTOOPT, unix.EOPNOTSUPP) {
			return nil
		}
		return err
	}
}

func roundSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int((d + time.Second - 1) / time.Second)
}
