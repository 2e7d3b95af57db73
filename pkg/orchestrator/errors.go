package orchestrator

import (
	"errors"
	"fmt"

	"github.com/sunlightlinux/slgreet/pkg/vt"
)

// Request rejections. They leave the state untouched.
var (
	ErrAlreadyActive        = errors.New("greeter already active")
	ErrGreeterNotActive     = errors.New("greeter not active")
	ErrSessionAlreadyActive = errors.New("session already active")
)

// Wire names for error kinds.
const (
	KindAlreadyActive        = "already_active"
	KindGreeterNotActive     = "greeter_not_active"
	KindSessionAlreadyActive = "session_already_active"
	KindAuthError            = "auth_error"
	KindLaunchFailure        = "launch_failure"
	KindTerminalModeFailure  = "terminal_mode_failure"
	KindError                = "error"
)

// LaunchError reports that a greeter, session or shutdown command could
// not be started.
type LaunchError struct {
	Role string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Role, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// LoginError reports that a login was refused before it was accepted,
// because the account could not be resolved or the password was wrong.
type LoginError struct {
	User string
	Err  error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login for %s refused: %v", e.User, e.Err)
}

func (e *LoginError) Unwrap() error { return e.Err }

// TerminalModeError reports that the VT could not be put in a mode. The
// daemon can no longer vouch for the terminal, so it is always fatal.
type TerminalModeError struct {
	Mode vt.Mode
	Err  error
}

func (e *TerminalModeError) Error() string {
	return fmt.Sprintf("switching terminal to %s mode: %v", e.Mode, e.Err)
}

func (e *TerminalModeError) Unwrap() error { return e.Err }

// KindOf classifies err for protocol replies.
func KindOf(err error) string {
	var launchErr *LaunchError
	var loginErr *LoginError
	var modeErr *TerminalModeError
	switch {
	case errors.Is(err, ErrAlreadyActive):
		return KindAlreadyActive
	case errors.Is(err, ErrGreeterNotActive):
		return KindGreeterNotActive
	case errors.Is(err, ErrSessionAlreadyActive):
		return KindSessionAlreadyActive
	case errors.As(err, &modeErr):
		return KindTerminalModeFailure
	case errors.As(err, &loginErr):
		return KindAuthError
	case errors.As(err, &launchErr):
		return KindLaunchFailure
	default:
		return KindError
	}
}

// IsFatal reports whether err, returned from a request operation, leaves
// the daemon unable to continue. Errors from signal-driven operations are
// always fatal.
func IsFatal(err error) bool {
	var modeErr *TerminalModeError
	return errors.As(err, &modeErr)
}
