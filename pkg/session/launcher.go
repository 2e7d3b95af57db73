package session

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sunlightlinux/slgreet/internal/util"
	"github.com/sunlightlinux/slgreet/pkg/logging"
	"github.com/sunlightlinux/slgreet/pkg/process"
	"github.com/sunlightlinux/slgreet/pkg/vt"
)

// DefaultPath is the PATH given to launched sessions.
const DefaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Launcher turns a Pending into a running, supervised process.
//
// Prepare runs when a request is accepted, while the greeter still owns the
// VT, and does every check that depends only on the request: a login it
// rejects never disturbs the greeter. Launch starts the process later.
type Launcher interface {
	Prepare(p *Pending) error
	Launch(p *Pending) (process.Handle, error)
}

// ErrNoAuthenticator is returned for user sessions when no Authenticator
// is configured and the greeter is not trusted to have checked the
// password itself.
var ErrNoAuthenticator = errors.New("no authenticator configured")

// Authenticator verifies a user's password before the session starts.
type Authenticator interface {
	Authenticate(service, user string, password []byte) error
}

// Terminal switches the active VT.
type Terminal interface {
	Activate(n int) error
}

// Mockable for tests.
var (
	lookupUserFunc = user.Lookup
	openTTYFunc    = func(path string) (*os.File, error) {
		return os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	}
	startProcessFunc = process.StartProcess
	getuidFunc       = os.Getuid
)

// ExecLauncher starts sessions as the target user on their VT, running
// the command through /bin/sh so that shell syntax in configured commands
// works.
type ExecLauncher struct {
	// Terminal activates the session's VT before launch. Optional.
	Terminal Terminal

	// Auth checks the password of user sessions.
	Auth Authenticator

	// TrustGreeter lets user sessions start without Auth, on the word of
	// the greeter alone. Without it a nil Auth refuses every login.
	TrustGreeter bool

	// Path overrides DefaultPath.
	Path string

	Logger *logging.Logger
}

// Prepare resolves the account p runs as and checks the password. The
// result is kept on p for Launch.
func (l *ExecLauncher) Prepare(p *Pending) error {
	u, err := lookupUserFunc(p.User)
	if err != nil {
		return &process.ExecError{Stage: process.StageLookupUser, Err: err}
	}
	cred, err := credentialFor(u)
	if err != nil {
		return &process.ExecError{Stage: process.StageLookupUser, Err: err}
	}

	if uid := getuidFunc(); uid != 0 {
		if int(cred.UID) != uid {
			return &process.ExecError{
				Stage: process.StageSetUIDGID,
				Err:   fmt.Errorf("cannot run as %s without root privileges", p.User),
			}
		}
		cred = nil
	}

	if p.Class == ClassUser {
		if err := l.authenticate(p); err != nil {
			return &process.ExecError{Stage: process.StageAuthenticate, Err: err}
		}
	}

	p.account = &account{user: u, cred: cred}
	return nil
}

func (l *ExecLauncher) authenticate(p *Pending) error {
	if l.Auth == nil {
		if l.TrustGreeter {
			return nil
		}
		return ErrNoAuthenticator
	}
	pw, err := p.Password()
	if err != nil {
		return err
	}
	return l.Auth.Authenticate(p.Service, p.User, pw)
}

// Launch starts p, preparing it first if that has not been done. The
// password is only read, never retained; the caller closes p afterwards.
func (l *ExecLauncher) Launch(p *Pending) (process.Handle, error) {
	if p.account == nil {
		if err := l.Prepare(p); err != nil {
			return nil, err
		}
	}
	u, cred := p.account.user, p.account.cred

	if l.Terminal != nil {
		if err := l.Terminal.Activate(p.VT); err != nil {
			return nil, &process.ExecError{Stage: process.StageActivateVT, Err: err}
		}
	}

	tty, err := openTTYFunc(vt.Path(p.VT))
	if err != nil {
		return nil, &process.ExecError{Stage: process.StageSetupTTY, Err: err}
	}
	defer tty.Close()

	child, err := startProcessFunc(process.ExecParams{
		Role:       p.Service,
		Command:    []string{"/bin/sh", "-c", "exec " + strings.Join(p.Command, " ")},
		Dir:        u.HomeDir,
		Env:        util.EnvList(l.environment(p, u)),
		Credential: cred,
		TTY:        tty,
	})
	if err != nil {
		return nil, err
	}

	if l.Logger != nil {
		l.Logger.ChildStarted(p.Service, child.PID())
	}
	return child, nil
}

func (l *ExecLauncher) environment(p *Pending, u *user.User) map[string]string {
	path := l.Path
	if path == "" {
		path = DefaultPath
	}
	base := map[string]string{
		"HOME":              u.HomeDir,
		"USER":              u.Username,
		"LOGNAME":           u.Username,
		"SHELL":             util.LookupShell(u.Username),
		"PATH":              path,
		"TERM":              "linux",
		"XDG_SEAT":          "seat0",
		"XDG_VTNR":          strconv.Itoa(p.VT),
		"XDG_SESSION_CLASS": string(p.Class),
	}
	return util.MergeEnv(base, p.Env)
}

func credentialFor(u *user.User) (*process.Credential, error) {
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid gid %q: %w", u.Gid, err)
	}

	cred := &process.Credential{UID: uint32(uid), GID: uint32(gid)}
	ids, err := u.GroupIds()
	if err != nil {
		// Primary group only.
		return cred, nil
	}
	for _, id := range ids {
		g, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			continue
		}
		cred.Groups = append(cred.Groups, uint32(g))
	}
	return cred, nil
}
