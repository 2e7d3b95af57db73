package process

import (
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetChildSubreaper makes orphaned descendants reparent to us, so that
// session processes which outlive their leader are still reaped here.
func SetChildSubreaper() error {
	return unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
}

// IgnoreJobControlSignals keeps terminal job-control signals from stopping
// the daemon when it touches a VT it does not own.
func IgnoreJobControlSignals() {
	signal.Ignore(
		syscall.SIGTSTP,
		syscall.SIGTTIN,
		syscall.SIGTTOU,
		syscall.SIGPIPE,
	)
}
