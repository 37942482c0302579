//go:build unix && !linux && !darwin

package control

import "time"

func setKeepAlivePeriod(fd int, idle time.Duration, interval time.Duration) error {
	return errKeepAliveTunables
}
