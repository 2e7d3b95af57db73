package orchestrator

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sunlightlinux/slgreet/pkg/clock"
	"github.com/sunlightlinux/slgreet/pkg/logging"
	"github.com/sunlightlinux/slgreet/pkg/process"
	"github.com/sunlightlinux/slgreet/pkg/session"
	"github.com/sunlightlinux/slgreet/pkg/shutdown"
	"github.com/sunlightlinux/slgreet/pkg/vt"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeChild struct {
	pid   int
	role  string
	terms int
	kills int
	shoos int
}

func (c *fakeChild) PID() int             { return c.pid }
func (c *fakeChild) Role() string         { return c.role }
func (c *fakeChild) OwnsPID(pid int) bool { return pid == c.pid }
func (c *fakeChild) Term() error          { c.terms++; return nil }
func (c *fakeChild) Kill() error          { c.kills++; return nil }
func (c *fakeChild) Shoo()                { c.shoos++ }

type launch struct {
	service  string
	class    session.Class
	user     string
	command  []string
	vt       int
	password string
	child    *fakeChild
}

type fakeLauncher struct {
	nextPID  int
	fail     error
	failFor  string
	refuse   error
	prepared []string
	launches []launch
}

func (l *fakeLauncher) Prepare(p *session.Pending) error {
	if l.refuse != nil {
		return l.refuse
	}
	l.prepared = append(l.prepared, p.User)
	return nil
}

func (l *fakeLauncher) Launch(p *session.Pending) (process.Handle, error) {
	if l.fail != nil && (l.failFor == "" || l.failFor == p.Service) {
		return nil, l.fail
	}
	pw, err := p.Password()
	if err != nil {
		return nil, err
	}
	l.nextPID++
	c := &fakeChild{pid: l.nextPID, role: p.Service}
	l.launches = append(l.launches, launch{
		service:  p.Service,
		class:    p.Class,
		user:     p.User,
		command:  p.Command,
		vt:       p.VT,
		password: string(pw),
		child:    c,
	})
	return c, nil
}

func (l *fakeLauncher) last() launch {
	return l.launches[len(l.launches)-1]
}

type fakeTerminal struct {
	modes []vt.Mode
	err   error
}

func (t *fakeTerminal) SetMode(m vt.Mode) error {
	t.modes = append(t.modes, m)
	return t.err
}

type fakeAlarm struct {
	clk   *clock.FakeClock
	timer *clock.Timer
	fire  func()
	sets  []time.Duration
}

func (a *fakeAlarm) Set(d time.Duration) {
	a.timer.Stop()
	a.sets = append(a.sets, d)
	a.timer = a.clk.AfterFunc(d, a.fire)
}

type reapResult struct {
	pid    int
	status unix.WaitStatus
	err    error
}

func exited(code int) unix.WaitStatus          { return unix.WaitStatus(code << 8) }
func killedBy(sig unix.Signal) unix.WaitStatus { return unix.WaitStatus(sig) }
func stoppedBy(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(0x7f | int(sig)<<8)
}

type harness struct {
	t        *testing.T
	o        *Orchestrator
	clk      *clock.FakeClock
	launcher *fakeLauncher
	terminal *fakeTerminal
	alarm    *fakeAlarm
	exits    []int
	before   []int
	spawned  []shutdown.Action
	log      bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clk:      clock.Fake(epoch),
		launcher: &fakeLauncher{nextPID: 100},
		terminal: &fakeTerminal{},
	}
	h.alarm = &fakeAlarm{clk: h.clk}
	logger := logging.NewWithWriter(&h.log, logging.FormatText, logging.LevelDebug)
	cfg := Config{
		GreeterCommand: []string{"agreety", "--cmd", "/bin/sh"},
		GreeterUser:    "greeter",
		VT:             7,
	}
	h.o = New(cfg, h.launcher, h.terminal, h.alarm, h.clk, logger)
	h.o.BeforeExit = func(code int) { h.before = append(h.before, code) }
	h.alarm.fire = func() {
		if err := h.o.Alarm(); err != nil {
			t.Errorf("Alarm: %v", err)
		}
	}

	origExit, origReap, origSpawn := exitFunc, reapFunc, spawnFunc
	t.Cleanup(func() {
		exitFunc, reapFunc, spawnFunc = origExit, origReap, origSpawn
	})
	exitFunc = func(code int) { h.exits = append(h.exits, code) }
	reapFunc = func() (int, unix.WaitStatus, error) { return 0, 0, unix.ECHILD }
	spawnFunc = func(a shutdown.Action) (int, error) {
		h.spawned = append(h.spawned, a)
		return 4242, nil
	}
	return h
}

// reaps queues results for the next ReapChildren, ending with ECHILD.
func (h *harness) reaps(results ...reapResult) {
	i := 0
	reapFunc = func() (int, unix.WaitStatus, error) {
		if i >= len(results) {
			return 0, 0, unix.ECHILD
		}
		r := results[i]
		i++
		return r.pid, r.status, r.err
	}
}

func (h *harness) greet() *fakeChild {
	h.t.Helper()
	if err := h.o.Greet(); err != nil {
		h.t.Fatalf("Greet: %v", err)
	}
	return h.launcher.last().child
}

func (h *harness) login(user string) {
	h.t.Helper()
	err := h.o.Login(user, []byte("pw"), []string{"/bin/sh"}, map[string]string{}, vt.CurrentSelection())
	if err != nil {
		h.t.Fatalf("Login: %v", err)
	}
}

func (h *harness) wantState(want string) {
	h.t.Helper()
	if got := h.o.State(); got != want {
		h.t.Fatalf("expected state %s, got %s", want, got)
	}
}

func TestGreetStartsGreeter(t *testing.T) {
	h := newHarness(t)
	h.greet()

	h.wantState("GreeterOnly")
	l := h.launcher.last()
	if l.service != "greeter" || l.class != session.ClassGreeter || l.user != "greeter" || l.vt != 7 {
		t.Fatalf("unexpected greeter launch: %+v", l)
	}
	if !slices.Equal(l.command, []string{"agreety", "--cmd", "/bin/sh"}) {
		t.Fatalf("unexpected greeter command: %v", l.command)
	}
	if len(h.terminal.modes) != 0 {
		t.Fatalf("terminal mode should not change on greet, got %v", h.terminal.modes)
	}
}

func TestGreetRejectedWhenGreeterActive(t *testing.T) {
	h := newHarness(t)
	h.greet()

	if err := h.o.Greet(); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if len(h.launcher.launches) != 1 {
		t.Fatalf("expected one launch, got %d", len(h.launcher.launches))
	}
	h.wantState("GreeterOnly")
}

func TestGreetRejectedWhileSessionRuns(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.login("alice")
	h.reaps(reapResult{pid: g.pid, status: exited(0)})
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}

	err := h.o.Greet()
	if !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("expected ErrSessionAlreadyActive, got %v", err)
	}
	if KindOf(err) != KindSessionAlreadyActive {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
	h.wantState("SessionRunning")
}

func TestGreetLaunchFailure(t *testing.T) {
	h := newHarness(t)
	h.launcher.fail = errors.New("no such user")

	err := h.o.Greet()
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) || launchErr.Role != "greeter" {
		t.Fatalf("expected greeter LaunchError, got %v", err)
	}
	if KindOf(err) != KindLaunchFailure || IsFatal(err) {
		t.Fatalf("unexpected classification: kind %q fatal %v", KindOf(err), IsFatal(err))
	}
	h.wantState("NoGreeter")
}

func TestLoginRequiresGreeter(t *testing.T) {
	h := newHarness(t)
	pw := []byte("hunter2")

	err := h.o.Login("alice", pw, []string{"/bin/sh"}, nil, vt.CurrentSelection())
	if !errors.Is(err, ErrGreeterNotActive) {
		t.Fatalf("expected ErrGreeterNotActive, got %v", err)
	}
	if !bytes.Equal(pw, make([]byte, len(pw))) {
		t.Fatalf("password not scrubbed after rejection: %q", pw)
	}
	if len(h.alarm.sets) != 0 {
		t.Fatal("alarm armed for rejected login")
	}
	h.wantState("NoGreeter")
}

func TestLoginArmsAlarmAndScrubsPassword(t *testing.T) {
	h := newHarness(t)
	h.greet()
	pw := []byte("pw")

	if err := h.o.Login("alice", pw, []string{"/bin/sh"}, nil, vt.Number(3)); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pw[0] != 0 || pw[1] != 0 {
		t.Fatalf("caller's password not scrubbed: %q", pw)
	}
	h.wantState("GreeterWithPending")
	if !slices.Equal(h.alarm.sets, []time.Duration{5 * time.Second}) {
		t.Fatalf("expected alarm armed for 5s, got %v", h.alarm.sets)
	}
	p := h.o.pending()
	if p == nil || p.User != "alice" || p.VT != 3 || p.Class != session.ClassUser {
		t.Fatalf("unexpected pending session: %+v", p)
	}
}

func TestLoginRefusedByLauncher(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.launcher.refuse = errors.New("bad password")
	pw := []byte("wrong")

	err := h.o.Login("alice", pw, []string{"/bin/sh"}, nil, vt.CurrentSelection())
	var loginErr *LoginError
	if !errors.As(err, &loginErr) || loginErr.User != "alice" {
		t.Fatalf("expected LoginError, got %v", err)
	}
	if KindOf(err) != KindAuthError || IsFatal(err) {
		t.Fatalf("unexpected classification: kind %q fatal %v", KindOf(err), IsFatal(err))
	}
	if !bytes.Equal(pw, make([]byte, len(pw))) {
		t.Fatalf("password not scrubbed after refusal: %q", pw)
	}
	h.wantState("GreeterOnly")
	if len(h.alarm.sets) != 0 {
		t.Fatalf("alarm armed for refused login: %v", h.alarm.sets)
	}

	h.clk.Advance(15 * time.Second)
	if g.terms != 0 || g.kills != 0 {
		t.Fatalf("greeter signalled after refused login: terms=%d kills=%d", g.terms, g.kills)
	}

	// The greeter can try again.
	h.launcher.refuse = nil
	h.login("alice")
	h.wantState("GreeterWithPending")
	if !slices.Equal(h.launcher.prepared, []string{"alice"}) {
		t.Fatalf("unexpected prepared logins %v", h.launcher.prepared)
	}
}

func TestSecondLoginRejected(t *testing.T) {
	h := newHarness(t)
	h.greet()
	h.login("alice")

	err := h.o.Login("bob", []byte("x"), []string{"/bin/sh"}, nil, vt.CurrentSelection())
	if !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("expected ErrSessionAlreadyActive, got %v", err)
	}
	if h.o.pending().User != "alice" {
		t.Fatalf("pending session replaced by %q", h.o.pending().User)
	}
	if len(h.alarm.sets) != 1 {
		t.Fatalf("alarm re-armed by rejected login: %v", h.alarm.sets)
	}
}

func TestLoginGreeterExitsWithinGrace(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.login("alice")

	h.clk.Advance(2 * time.Second)
	if g.terms != 0 || g.kills != 0 {
		t.Fatalf("greeter signalled during grace period: terms=%d kills=%d", g.terms, g.kills)
	}

	h.reaps(reapResult{pid: g.pid, status: exited(0)})
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	h.wantState("SessionRunning")
	s := h.launcher.last()
	if s.user != "alice" || s.service != "login" || s.vt != 7 || s.password != "pw" {
		t.Fatalf("unexpected session launch: %+v", s)
	}
	if h.o.pending() != nil {
		t.Fatal("pending session not consumed")
	}

	// The alarm still fires once but has nothing left to do.
	h.clk.Advance(5 * time.Second)
	if g.terms != 0 {
		t.Fatalf("greeter signalled after exit: %d", g.terms)
	}

	h.reaps(reapResult{pid: s.child.pid, status: exited(0)})
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	h.wantState("GreeterOnly")
	if got := h.launcher.last(); got.service != "greeter" || got.child.pid == g.pid {
		t.Fatalf("expected a fresh greeter, got %+v", got)
	}
	if len(h.exits) != 0 || len(h.terminal.modes) != 0 {
		t.Fatalf("unexpected exit %v or mode change %v", h.exits, h.terminal.modes)
	}
}

func TestStubbornGreeterIsEscalated(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.login("alice")

	h.clk.Advance(4 * time.Second)
	if g.terms != 0 {
		t.Fatalf("greeter nudged before 5s: %d", g.terms)
	}

	h.clk.Advance(time.Second)
	if g.terms != 1 || g.kills != 0 {
		t.Fatalf("at 5s: terms=%d kills=%d", g.terms, g.kills)
	}

	// Nudges at 6, 7, 8, 9 and 10 seconds; 10s exactly is not yet past the
	// kill threshold.
	h.clk.Advance(5 * time.Second)
	if g.terms != 6 || g.kills != 0 {
		t.Fatalf("at 10s: terms=%d kills=%d", g.terms, g.kills)
	}

	h.clk.Advance(time.Second)
	if g.kills != 1 {
		t.Fatalf("at 11s: expected kill, got terms=%d kills=%d", g.terms, g.kills)
	}
	h.wantState("GreeterWithPending")
	if len(h.launcher.launches) != 1 {
		t.Fatal("session launched before greeter was reaped")
	}
	for _, d := range h.alarm.sets[1:] {
		if d != time.Second {
			t.Fatalf("expected 1s re-arm, got %v", h.alarm.sets)
		}
	}

	h.reaps(reapResult{pid: g.pid, status: killedBy(unix.SIGKILL)})
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	h.wantState("SessionRunning")
	if h.launcher.last().user != "alice" {
		t.Fatalf("unexpected session: %+v", h.launcher.last())
	}
}

func TestAlarmLaunchesOrphanedPending(t *testing.T) {
	h := newHarness(t)
	p, err := session.New("login", session.ClassUser, "alice", []byte("pw"), []string{"/bin/sh"}, nil, 2, epoch)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	h.o.state = pendingOnly{pending: p}

	if err := h.o.Alarm(); err != nil {
		t.Fatalf("Alarm: %v", err)
	}
	h.wantState("SessionRunning")
	if l := h.launcher.last(); l.user != "alice" || l.vt != 2 {
		t.Fatalf("unexpected launch: %+v", l)
	}
	if _, err := p.Password(); err == nil {
		t.Fatal("password still readable after launch")
	}
}

func TestAlarmWithoutPendingIsNoop(t *testing.T) {
	h := newHarness(t)
	g := h.greet()

	if err := h.o.Alarm(); err != nil {
		t.Fatalf("Alarm: %v", err)
	}
	if g.terms != 0 || g.kills != 0 || len(h.alarm.sets) != 0 {
		t.Fatalf("alarm had effects: terms=%d kills=%d sets=%v", g.terms, g.kills, h.alarm.sets)
	}
	h.wantState("GreeterOnly")
}

func TestGreeterLostExitsNonZero(t *testing.T) {
	h := newHarness(t)
	g := h.greet()

	h.reaps(reapResult{pid: g.pid, status: killedBy(unix.SIGSEGV)})
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	if !slices.Equal(h.terminal.modes, []vt.Mode{vt.Text}) {
		t.Fatalf("expected text mode, got %v", h.terminal.modes)
	}
	if !slices.Equal(h.exits, []int{1}) || !slices.Equal(h.before, []int{1}) {
		t.Fatalf("expected exit 1, got exits=%v before=%v", h.exits, h.before)
	}
	if !strings.Contains(h.log.String(), "SIGSEGV") && !strings.Contains(h.log.String(), "segmentation") {
		t.Fatalf("signal not logged: %s", h.log.String())
	}
}

func TestGreeterLostTextModeFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.terminal.err = errors.New("EIO")

	h.reaps(reapResult{pid: g.pid, status: exited(1)})
	err := h.o.ReapChildren()
	if !IsFatal(err) || KindOf(err) != KindTerminalModeFailure {
		t.Fatalf("expected fatal terminal mode error, got %v", err)
	}
	if len(h.exits) != 0 {
		t.Fatalf("exit should be left to the caller, got %v", h.exits)
	}
}

func TestSessionLaunchFailureFallsBackToText(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.login("alice")
	h.launcher.fail = errors.New("exec failed")
	h.launcher.failFor = "login"

	h.reaps(reapResult{pid: g.pid, status: exited(0)})
	err := h.o.ReapChildren()
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) || launchErr.Role != "login" {
		t.Fatalf("expected login LaunchError, got %v", err)
	}
	if !slices.Equal(h.terminal.modes, []vt.Mode{vt.Text}) {
		t.Fatalf("expected text mode, got %v", h.terminal.modes)
	}
	h.wantState("NoGreeter")
}

func TestSessionExitGreeterFailure(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.login("alice")
	h.reaps(reapResult{pid: g.pid, status: exited(0)})
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	s := h.launcher.last()

	h.launcher.fail = errors.New("greeter binary missing")
	h.reaps(reapResult{pid: s.child.pid, status: exited(0)})
	err := h.o.ReapChildren()
	if KindOf(err) != KindLaunchFailure {
		t.Fatalf("expected launch failure, got %v", err)
	}
	if !slices.Equal(h.terminal.modes, []vt.Mode{vt.Text}) {
		t.Fatalf("expected text mode, got %v", h.terminal.modes)
	}
	h.wantState("NoGreeter")
}

func TestReapIgnoresUnknownAndStopped(t *testing.T) {
	h := newHarness(t)
	g := h.greet()

	h.reaps(
		reapResult{pid: 9999, status: exited(0)},
		reapResult{pid: g.pid, status: stoppedBy(unix.SIGSTOP)},
	)
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	h.wantState("GreeterOnly")
	if len(h.exits) != 0 {
		t.Fatalf("unexpected exit %v", h.exits)
	}
}

func TestReapDrainsAll(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.login("alice")

	h.reaps(
		reapResult{pid: 4242, status: exited(0)},
		reapResult{err: unix.EINTR},
		reapResult{pid: g.pid, status: exited(0)},
	)
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	h.wantState("SessionRunning")
}

func TestReapStopsOnNoneExited(t *testing.T) {
	h := newHarness(t)
	g := h.greet()

	h.reaps(reapResult{pid: 0}, reapResult{pid: g.pid, status: exited(0)})
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	h.wantState("GreeterOnly")
}

func TestReapWaitErrorsAreNotFatal(t *testing.T) {
	h := newHarness(t)
	h.greet()

	calls := 0
	reapFunc = func() (int, unix.WaitStatus, error) {
		calls++
		return 0, 0, unix.EINVAL
	}
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	if calls != maxWaitFailures {
		t.Fatalf("expected %d attempts, got %d", maxWaitFailures, calls)
	}
	h.wantState("GreeterOnly")
}

func TestShutdownRequiresGreeter(t *testing.T) {
	h := newHarness(t)

	if err := h.o.Shutdown(shutdown.Poweroff); !errors.Is(err, ErrGreeterNotActive) {
		t.Fatalf("expected ErrGreeterNotActive, got %v", err)
	}
	if len(h.spawned) != 0 {
		t.Fatalf("command spawned without greeter: %v", h.spawned)
	}
}

func TestShutdownRejectedDuringSession(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.login("alice")
	h.reaps(reapResult{pid: g.pid, status: exited(0)})
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}

	if err := h.o.Shutdown(shutdown.Reboot); !errors.Is(err, ErrGreeterNotActive) {
		t.Fatalf("expected ErrGreeterNotActive, got %v", err)
	}
}

func TestShutdownSpawnsCommand(t *testing.T) {
	h := newHarness(t)
	h.greet()

	if err := h.o.Shutdown(shutdown.Reboot); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !slices.Equal(h.spawned, []shutdown.Action{shutdown.Reboot}) {
		t.Fatalf("unexpected spawns: %v", h.spawned)
	}
	h.wantState("GreeterOnly")

	// The shutdown command is reaped without disturbing the greeter.
	h.reaps(reapResult{pid: 4242, status: exited(0)})
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	h.wantState("GreeterOnly")
}

func TestShutdownSpawnFailure(t *testing.T) {
	h := newHarness(t)
	h.greet()
	spawnFunc = func(shutdown.Action) (int, error) { return 0, errors.New("fork failed") }

	err := h.o.Shutdown(shutdown.Poweroff)
	if KindOf(err) != KindLaunchFailure || IsFatal(err) {
		t.Fatalf("expected non-fatal launch failure, got %v", err)
	}
}

func TestShutdownExitTerminates(t *testing.T) {
	h := newHarness(t)
	g := h.greet()

	if err := h.o.Shutdown(shutdown.Exit); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if g.shoos != 1 {
		t.Fatalf("greeter not asked to leave: %d", g.shoos)
	}
	if !slices.Equal(h.exits, []int{0}) {
		t.Fatalf("expected exit 0, got %v", h.exits)
	}
}

func TestTerminateSession(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.login("alice")
	h.reaps(reapResult{pid: g.pid, status: exited(0)})
	if err := h.o.ReapChildren(); err != nil {
		t.Fatalf("ReapChildren: %v", err)
	}
	s := h.launcher.last().child

	if err := h.o.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if s.shoos != 1 {
		t.Fatalf("session not asked to leave: %d", s.shoos)
	}
	if !slices.Equal(h.terminal.modes, []vt.Mode{vt.Text}) {
		t.Fatalf("expected text mode, got %v", h.terminal.modes)
	}
	if !slices.Equal(h.exits, []int{0}) || !slices.Equal(h.before, []int{0}) {
		t.Fatalf("expected exit 0, got exits=%v before=%v", h.exits, h.before)
	}
	h.wantState("NoGreeter")
}

func TestTerminateWipesPending(t *testing.T) {
	h := newHarness(t)
	g := h.greet()
	h.login("alice")
	p := h.o.pending()

	if err := h.o.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if g.shoos != 1 {
		t.Fatalf("greeter not asked to leave: %d", g.shoos)
	}
	if _, err := p.Password(); err == nil {
		t.Fatal("pending password still readable after terminate")
	}
}

func TestTerminateTextModeFailure(t *testing.T) {
	h := newHarness(t)
	h.greet()
	h.terminal.err = errors.New("EIO")

	err := h.o.Terminate()
	var modeErr *TerminalModeError
	if !errors.As(err, &modeErr) || modeErr.Mode != vt.Text {
		t.Fatalf("expected TerminalModeError, got %v", err)
	}
	if len(h.exits) != 0 {
		t.Fatalf("exit should be left to the caller, got %v", h.exits)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrAlreadyActive, KindAlreadyActive},
		{ErrGreeterNotActive, KindGreeterNotActive},
		{ErrSessionAlreadyActive, KindSessionAlreadyActive},
		{&LaunchError{Role: "greeter", Err: errors.New("x")}, KindLaunchFailure},
		{&LoginError{User: "alice", Err: errors.New("x")}, KindAuthError},
		{errors.Join(&LaunchError{Role: "login"}, &TerminalModeError{Mode: vt.Text}), KindTerminalModeFailure},
		{errors.New("other"), KindError},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
