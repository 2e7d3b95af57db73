package orchestrator

import (
	"github.com/sunlightlinux/slgreet/pkg/process"
	"github.com/sunlightlinux/slgreet/pkg/session"
)

// state is one of the reachable combinations of greeter, session and
// pending request. Combinations outside this set, such as a greeter and a
// session at once, cannot be expressed.
type state interface {
	name() string
}

type noGreeter struct{}

type greeterOnly struct {
	greeter process.Handle
}

type greeterWithPending struct {
	greeter process.Handle
	pending *session.Pending
}

// pendingOnly is a login whose greeter has been reaped but which has not
// been launched yet.
type pendingOnly struct {
	pending *session.Pending
}

type sessionRunning struct {
	session process.Handle
}

func (noGreeter) name() string          { return "NoGreeter" }
func (greeterOnly) name() string        { return "GreeterOnly" }
func (greeterWithPending) name() string { return "GreeterWithPending" }
func (pendingOnly) name() string        { return "PendingOnly" }
func (sessionRunning) name() string     { return "SessionRunning" }

func (o *Orchestrator) greeter() process.Handle {
	switch st := o.state.(type) {
	case greeterOnly:
		return st.greeter
	case greeterWithPending:
		return st.greeter
	}
	return nil
}

func (o *Orchestrator) session() process.Handle {
	if st, ok := o.state.(sessionRunning); ok {
		return st.session
	}
	return nil
}

func (o *Orchestrator) pending() *session.Pending {
	switch st := o.state.(type) {
	case greeterWithPending:
		return st.pending
	case pendingOnly:
		return st.pending
	}
	return nil
}
