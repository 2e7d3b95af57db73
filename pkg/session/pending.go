// Package session describes login sessions that have been requested but
// not yet started, and launches them as supervised processes.
package session

import (
	"errors"
	"fmt"
	"maps"
	"os/user"
	"time"

	"github.com/sunlightlinux/slgreet/pkg/process"
	"github.com/sunlightlinux/slgreet/pkg/secret"
)

// Class is the XDG session class of a launched process.
type Class string

const (
	ClassGreeter Class = "greeter"
	ClassUser    Class = "user"
)

// Pending is an accepted request to start a process on a VT. For a login
// it waits until the greeter has left the terminal.
type Pending struct {
	Service string
	Class   Class
	User    string
	Command []string
	Env     map[string]string
	VT      int

	password   *secret.Buffer
	acceptedAt time.Time

	// Set by ExecLauncher.Prepare.
	account *account
}

type account struct {
	user *user.User
	cred *process.Credential
}

// New builds a Pending. A non-empty password is moved into a locked
// secret.Buffer and the caller's slice is scrubbed, whether or not New
// succeeds.
func New(service string, class Class, user string, password []byte, cmd []string, env map[string]string, vt int, now time.Time) (*Pending, error) {
	defer secret.Scrub(password)

	switch {
	case user == "":
		return nil, errors.New("session: empty user")
	case len(cmd) == 0:
		return nil, errors.New("session: empty command")
	case vt <= 0:
		return nil, fmt.Errorf("session: invalid VT %d", vt)
	}

	p := &Pending{
		Service:    service,
		Class:      class,
		User:       user,
		Command:    append([]string(nil), cmd...),
		Env:        maps.Clone(env),
		VT:         vt,
		acceptedAt: now,
	}
	if len(password) > 0 {
		buf, err := secret.NewFromBytes(password)
		if err != nil {
			return nil, err
		}
		p.password = buf
	}
	return p, nil
}

// AcceptedAt returns when the request was accepted.
func (p *Pending) AcceptedAt() time.Time {
	return p.acceptedAt
}

// Elapsed returns the time since the request was accepted.
func (p *Pending) Elapsed(now time.Time) time.Duration {
	return now.Sub(p.acceptedAt)
}

// Password returns the secret, or nil if none was given. The slice is only
// valid until Close.
func (p *Pending) Password() ([]byte, error) {
	if p.password == nil {
		return nil, nil
	}
	return p.password.Bytes()
}

// Close wipes the password.
func (p *Pending) Close() error {
	if p.password == nil {
		return nil
	}
	return p.password.Close()
}
