package ipc

import (
	"errors"

	"github.com/sunlightlinux/slgreet/pkg/shutdown"
)

// Kind identifies what a Request asks for.
type Kind uint8

const (
	KindGreet Kind = iota + 1
	KindLogin
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindGreet:
		return "greet"
	case KindLogin:
		return "login"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Request is a decoded client request waiting for the event loop. The loop
// must call Respond exactly once.
type Request struct {
	Kind   Kind
	Login  *LoginRequest
	Action shutdown.Action

	reply chan error
}

// NewRequest creates a Request that can be responded to. The server builds
// its own; this is for code that feeds the event loop directly.
func NewRequest(kind Kind) *Request {
	return &Request{Kind: kind, reply: make(chan error, 1)}
}

// Respond delivers the outcome to the waiting connection.
func (r *Request) Respond(err error) {
	select {
	case r.reply <- err:
	default:
	}
}

// Wait returns the outcome passed to Respond.
func (r *Request) Wait() error {
	return <-r.reply
}

var errServerStopped = errors.New("ipc: server stopped")
