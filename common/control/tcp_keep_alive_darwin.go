package control

import (
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"

	"golang.org/x/sys/unix"
)

func setKeepAlivePeriod(fd int, idle time.Duration, interval time.Duration) error {
	if interval <= 0 {
		interval = idle
	}
	if idle <= 0 {
		idle = interval
	}
	return E.Errors(
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPALIVE, roundSeconds(idle)),
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, roundSeconds(interval)),
	)
}
