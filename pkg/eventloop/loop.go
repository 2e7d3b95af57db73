package eventloop

import (
	"context"
	"fmt"
	"os"

	"github.com/sunlightlinux/slgreet/pkg/ipc"
	"github.com/sunlightlinux/slgreet/pkg/logging"
	"github.com/sunlightlinux/slgreet/pkg/orchestrator"
	"github.com/sunlightlinux/slgreet/pkg/shutdown"
	"github.com/sunlightlinux/slgreet/pkg/vt"
)

// Orchestrator is the state machine the loop drives.
type Orchestrator interface {
	Handler
	Greet() error
	Login(username string, password []byte, cmd []string, env map[string]string, sel vt.Selection) error
	Shutdown(action shutdown.Action) error
}

// EventLoop is the central event coordinator for slgreetd.
type EventLoop struct {
	orch     Orchestrator
	signals  *Signals
	requests <-chan *ipc.Request
	logger   *logging.Logger
}

// New creates an EventLoop. requests may be nil when no request socket is
// served.
func New(orch Orchestrator, signals *Signals, requests <-chan *ipc.Request, logger *logging.Logger) *EventLoop {
	return &EventLoop{
		orch:     orch,
		signals:  signals,
		requests: requests,
		logger:   logger,
	}
}

// Run processes events until the context is cancelled or an event fails
// fatally. Any error from a signal handler is fatal; a request error is
// fatal only when orchestrator.IsFatal says so, and is otherwise sent back
// to the client.
func (el *EventLoop) Run(ctx context.Context) error {
	el.logger.Info("slgreetd event loop started (PID %d)", os.Getpid())

	for {
		select {
		case <-ctx.Done():
			el.logger.Info("Context cancelled, leaving event loop")
			return ctx.Err()

		case sig := <-el.signals.C():
			if err := el.signals.Dispatch(sig, el.orch); err != nil {
				return fmt.Errorf("handling %v: %w", sig, err)
			}

		case req := <-el.requests:
			if err := el.serve(req); err != nil {
				return fmt.Errorf("handling %s request: %w", req.Kind, err)
			}
		}
	}
}

// serve runs one request and responds to it. It returns the error only if
// it is fatal.
func (el *EventLoop) serve(req *ipc.Request) error {
	var err error
	switch req.Kind {
	case ipc.KindGreet:
		err = el.orch.Greet()
	case ipc.KindLogin:
		l := req.Login
		err = el.orch.Login(l.Username, l.Password, l.Command, l.Env, l.Selection())
	case ipc.KindShutdown:
		err = el.orch.Shutdown(req.Action)
	default:
		err = fmt.Errorf("unknown request kind %d", req.Kind)
	}

	if err != nil {
		el.logger.Debug("%s request failed: %v", req.Kind, err)
	}
	req.Respond(err)
	if err != nil && orchestrator.IsFatal(err) {
		return err
	}
	return nil
}
