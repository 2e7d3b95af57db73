// Package orchestrator supervises the greeter and the login session that
// share a virtual terminal.
//
// An Orchestrator tracks at most one greeter, one running session and one
// pending login. Its methods are called from a single event loop, one at a
// time, and each runs to completion: nothing here is safe for concurrent
// use.
package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sunlightlinux/slgreet/pkg/clock"
	"github.com/sunlightlinux/slgreet/pkg/logging"
	"github.com/sunlightlinux/slgreet/pkg/process"
	"github.com/sunlightlinux/slgreet/pkg/secret"
	"github.com/sunlightlinux/slgreet/pkg/session"
	"github.com/sunlightlinux/slgreet/pkg/shutdown"
	"github.com/sunlightlinux/slgreet/pkg/vt"
)

// Greeter escalation policy, measured from login acceptance.
const (
	initialGrace  = 5 * time.Second
	nudgeInterval = 1 * time.Second
	killAfter     = 10 * time.Second
)

// Consecutive wait errors tolerated in one reap pass.
const maxWaitFailures = 3

const (
	greeterService = "greeter"
	loginService   = "login"
)

// Mockable for tests.
var (
	exitFunc  = os.Exit
	reapFunc  = process.Reap
	spawnFunc = shutdown.Spawn
)

// Terminal sets the display mode of the VT.
type Terminal interface {
	SetMode(m vt.Mode) error
}

// Alarm is the escalation timer. Set replaces any pending expiry.
type Alarm interface {
	Set(d time.Duration)
}

// Config is the fixed greeter configuration.
type Config struct {
	GreeterCommand []string
	GreeterUser    string
	// GreeterEnv is added to the greeter's environment.
	GreeterEnv map[string]string
	// VT is the default terminal for the greeter and for logins that ask
	// for the current VT.
	VT int
}

// Orchestrator is the greeter/session state machine.
type Orchestrator struct {
	cfg      Config
	launcher session.Launcher
	terminal Terminal
	alarm    Alarm
	clock    clock.Clock
	logger   *logging.Logger

	state state

	// BeforeExit is called right before the process exits, with the exit
	// code.
	BeforeExit func(code int)
}

// New creates an Orchestrator with no greeter running.
func New(cfg Config, launcher session.Launcher, terminal Terminal, alarm Alarm, clk clock.Clock, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		launcher: launcher,
		terminal: terminal,
		alarm:    alarm,
		clock:    clk,
		logger:   logger,
		state:    noGreeter{},
	}
}

// State returns the name of the current state.
func (o *Orchestrator) State() string {
	return o.state.name()
}

// Greet starts the greeter.
func (o *Orchestrator) Greet() error {
	switch o.state.(type) {
	case noGreeter:
	case greeterOnly, greeterWithPending:
		o.logger.Warn("greeter session already active")
		return ErrAlreadyActive
	default:
		o.logger.Warn("greeter requested while a session is active")
		return ErrSessionAlreadyActive
	}

	p, err := session.New(greeterService, session.ClassGreeter, o.cfg.GreeterUser, nil,
		o.cfg.GreeterCommand, o.cfg.GreeterEnv, o.cfg.VT, o.clock.Now())
	if err != nil {
		return &LaunchError{Role: greeterService, Err: err}
	}
	h, err := o.launcher.Launch(p)
	p.Close()
	if err != nil {
		o.logger.Error("greeter start failed: %v", err)
		return &LaunchError{Role: greeterService, Err: err}
	}

	o.state = greeterOnly{greeter: h}
	o.logger.Info("greeter started as %s (PID %d) on VT %d", o.cfg.GreeterUser, h.PID(), o.cfg.VT)
	return nil
}

// Login accepts a login for username once the launcher has resolved the
// account and checked the password; a refusal leaves the greeter alone.
// The session starts once the greeter has exited; the greeter is asked to leave after initialGrace and killed
// after killAfter. password is scrubbed before Login returns, whatever the
// outcome.
func (o *Orchestrator) Login(username string, password []byte, cmd []string, env map[string]string, sel vt.Selection) error {
	defer secret.Scrub(password)

	var greeter process.Handle
	switch st := o.state.(type) {
	case greeterOnly:
		greeter = st.greeter
	case greeterWithPending:
		o.logger.Warn("login session already pending")
		return ErrSessionAlreadyActive
	default:
		o.logger.Warn("login request not valid when greeter is not active")
		return ErrGreeterNotActive
	}

	p, err := session.New(loginService, session.ClassUser, username, password,
		cmd, env, sel.Resolve(o.cfg.VT), o.clock.Now())
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	if err := o.launcher.Prepare(p); err != nil {
		p.Close()
		o.logger.Warn("login for %s refused: %v", username, err)
		return &LoginError{User: username, Err: err}
	}

	o.state = greeterWithPending{greeter: greeter, pending: p}
	o.alarm.Set(initialGrace)
	o.logger.Info("login for %s accepted on VT %d, waiting for greeter to exit", username, p.VT)
	return nil
}

// Shutdown runs the system command for action, or terminates the daemon
// for shutdown.Exit, in which case it only returns on error.
func (o *Orchestrator) Shutdown(action shutdown.Action) error {
	if o.greeter() == nil || o.session() != nil {
		o.logger.Warn("shutdown request not valid when greeter is not active")
		return ErrGreeterNotActive
	}

	if action == shutdown.Exit {
		return o.Terminate()
	}

	pid, err := spawnFunc(action)
	if err != nil {
		return &LaunchError{Role: "shutdown", Err: err}
	}
	o.logger.Notice("%s requested, command running as PID %d", action, pid)
	return nil
}

// Alarm handles an escalation timer expiry.
func (o *Orchestrator) Alarm() error {
	switch st := o.state.(type) {
	case greeterWithPending:
		var err error
		elapsed := st.pending.Elapsed(o.clock.Now())
		if elapsed > killAfter {
			o.logger.Warn("greeter (PID %d) still running %v after login, killing it", st.greeter.PID(), elapsed.Round(time.Millisecond))
			err = st.greeter.Kill()
		} else {
			o.logger.Debug("asking greeter (PID %d) to exit", st.greeter.PID())
			err = st.greeter.Term()
		}
		if err != nil {
			o.logger.Debug("signalling greeter: %v", err)
		}
		o.alarm.Set(nudgeInterval)
		return nil

	case pendingOnly:
		return o.startPending(st.pending)

	default:
		o.logger.Debug("alarm with nothing pending (state %s)", o.state.name())
		return nil
	}
}

// ReapChildren collects every exited child and updates the state for the
// ones we supervise.
func (o *Orchestrator) ReapChildren() error {
	failures := 0
	for {
		pid, status, err := reapFunc()
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return nil
		case err != nil:
			o.logger.Error("waitpid returned an error: %v", err)
			failures++
			if failures >= maxWaitFailures {
				return nil
			}
			continue
		case pid == 0:
			return nil
		}

		failures = 0
		if !status.Exited() && !status.Signaled() {
			continue
		}
		if err := o.childExited(pid, syscall.WaitStatus(status)); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) childExited(pid int, status syscall.WaitStatus) error {
	switch st := o.state.(type) {
	case sessionRunning:
		if !st.session.OwnsPID(pid) {
			break
		}
		o.logger.ChildExited(st.session.Role(), pid, status)
		o.state = noGreeter{}
		if err := o.Greet(); err != nil {
			return o.fallBack(fmt.Errorf("restarting greeter after session exit: %w", err))
		}
		return nil

	case greeterOnly:
		if !st.greeter.OwnsPID(pid) {
			break
		}
		o.logger.ChildExited(st.greeter.Role(), pid, status)
		o.state = noGreeter{}
		return o.greeterLost()

	case greeterWithPending:
		if !st.greeter.OwnsPID(pid) {
			break
		}
		o.logger.ChildExited(st.greeter.Role(), pid, status)
		o.state = pendingOnly{pending: st.pending}
		return o.startPending(st.pending)
	}

	o.logger.Debug("reaped unsupervised PID %d", pid)
	return nil
}

// startPending launches p as the session. The password is wiped right
// after the launcher has used it.
func (o *Orchestrator) startPending(p *session.Pending) error {
	o.logger.Info("starting pending session for %s", p.User)
	h, err := o.launcher.Launch(p)
	if cerr := p.Close(); cerr != nil {
		o.logger.Debug("releasing password buffer: %v", cerr)
	}
	if err != nil {
		o.state = noGreeter{}
		return o.fallBack(&LaunchError{Role: p.Service, Err: err})
	}

	o.state = sessionRunning{session: h}
	o.logger.Info("session for %s running (PID %d)", p.User, h.PID())
	return nil
}

// fallBack puts the VT back in text mode after cause left nothing on it.
func (o *Orchestrator) fallBack(cause error) error {
	o.logger.Error("%v", cause)
	if err := o.terminal.SetMode(vt.Text); err != nil {
		return errors.Join(cause, &TerminalModeError{Mode: vt.Text, Err: err})
	}
	return cause
}

func (o *Orchestrator) greeterLost() error {
	o.logger.Error("greeter exited with no session to take over, giving up")
	if err := o.terminal.SetMode(vt.Text); err != nil {
		return &TerminalModeError{Mode: vt.Text, Err: err}
	}
	o.exit(1)
	return nil
}

// Terminate asks the greeter and session to leave, restores text mode and
// exits with status 0. It only returns if text mode cannot be restored.
func (o *Orchestrator) Terminate() error {
	switch st := o.state.(type) {
	case sessionRunning:
		st.session.Shoo()
	case greeterOnly:
		st.greeter.Shoo()
	case greeterWithPending:
		st.greeter.Shoo()
		st.pending.Close()
	case pendingOnly:
		st.pending.Close()
	}
	o.state = noGreeter{}

	if err := o.terminal.SetMode(vt.Text); err != nil {
		return &TerminalModeError{Mode: vt.Text, Err: err}
	}
	o.logger.Notice("terminating")
	o.exit(0)
	return nil
}

func (o *Orchestrator) exit(code int) {
	if o.BeforeExit != nil {
		o.BeforeExit(code)
	}
	exitFunc(code)
}
