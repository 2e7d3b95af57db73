package process

import (
	"golang.org/x/sys/unix"
)

// Mockable for tests.
var wait4Func = unix.Wait4

// Reap collects one terminated child without blocking. A zero pid with a
// nil error means children exist but none has exited; unix.ECHILD means
// there are no children at all.
func Reap() (int, unix.WaitStatus, error) {
	var status unix.WaitStatus
	pid, err := wait4Func(-1, &status, unix.WNOHANG, nil)
	if err != nil {
		return 0, 0, err
	}
	return pid, status, nil
}
