package process

import (
	"golang.org/x/sys/unix"
)

// Mockable for tests.
var killFunc = unix.Kill

// Handle is a supervised process.
type Handle interface {
	// PID returns the process id.
	PID() int
	// Role returns the human-readable tag ("greeter", "login").
	Role() string
	// OwnsPID reports whether pid belongs to this handle.
	OwnsPID(pid int) bool
	// Term asks the process to exit.
	Term() error
	// Kill forces the process to exit.
	Kill() error
	// Shoo asks the process to leave without reporting failures.
	Shoo()
}

// Child is the Handle for a process started by StartProcess. Its pid also
// names its process group, since StartProcess always makes the child a
// group (or session) leader.
type Child struct {
	pid  int
	role string
}

// NewChild wraps an already running process.
func NewChild(pid int, role string) *Child {
	return &Child{pid: pid, role: role}
}

func (c *Child) PID() int     { return c.pid }
func (c *Child) Role() string { return c.role }

// OwnsPID reports whether pid is this child.
func (c *Child) OwnsPID(pid int) bool {
	return pid > 0 && pid == c.pid
}

// Term sends SIGTERM to the child's process group.
func (c *Child) Term() error {
	return SignalProcess(c.pid, unix.SIGTERM, false)
}

// Kill sends SIGKILL to the child's process group.
func (c *Child) Kill() error {
	return SignalProcess(c.pid, unix.SIGKILL, false)
}

// Shoo sends SIGTERM followed by SIGCONT, so that a stopped group also
// gets to handle the request, and does not wait for either.
func (c *Child) Shoo() {
	_ = SignalProcess(c.pid, unix.SIGTERM, false)
	_ = SignalProcess(c.pid, unix.SIGCONT, false)
}

// SignalProcess sends a signal to a process, or to its process group
// (negative pid) unless processOnly is set.
func SignalProcess(pid int, sig unix.Signal, processOnly bool) error {
	if pid <= 0 {
		return nil
	}
	if processOnly {
		return killFunc(pid, sig)
	}
	return killFunc(-pid, sig)
}
