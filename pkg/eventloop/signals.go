// Package eventloop runs slgreetd's single event loop. Signals and
// greeter requests arrive on channels and each becomes one call into the
// orchestrator, which runs to completion before the next event is read.
package eventloop

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sunlightlinux/slgreet/pkg/clock"
)

// Mockable for tests.
var (
	notifyFunc = signal.Notify
	stopFunc   = signal.Stop
)

// Handler receives the multiplexed signals.
type Handler interface {
	Alarm() error
	ReapChildren() error
	Terminate() error
}

// Signals turns SIGALRM, SIGTERM and SIGCHLD into events on one channel.
// Create it before starting any other goroutine that might fork, so no
// SIGCHLD is delivered with the default disposition.
type Signals struct {
	ch    chan os.Signal
	alarm *AlarmTimer

	// Set when the alarm fired while ch was full.
	alarmMissed atomic.Bool
}

// NewSignals starts intercepting the signals. Escalation timer expiries
// are measured on clk.
func NewSignals(clk clock.Clock) *Signals {
	s := &Signals{ch: make(chan os.Signal, 16)}
	notifyFunc(s.ch, syscall.SIGALRM, syscall.SIGTERM, syscall.SIGCHLD)
	s.alarm = NewAlarmTimer(clk, s.raiseAlarm)
	return s
}

// C delivers intercepted signals.
func (s *Signals) C() <-chan os.Signal {
	return s.ch
}

// Set arms the escalation timer to raise SIGALRM after d, replacing any
// earlier expiry.
func (s *Signals) Set(d time.Duration) {
	s.alarm.Arm(d)
}

func (s *Signals) raiseAlarm() {
	select {
	case s.ch <- syscall.SIGALRM:
	default:
		s.alarmMissed.Store(true)
	}
}

// Dispatch handles first and every other signal already pending. Repeats
// are coalesced, and each distinct signal gets exactly one handler call, in
// the order first seen. The first handler error stops dispatch and is
// returned.
func (s *Signals) Dispatch(first os.Signal, h Handler) error {
	pending := []os.Signal{first}
drain:
	for {
		select {
		case sig := <-s.ch:
			if !slices.Contains(pending, sig) {
				pending = append(pending, sig)
			}
		default:
			break drain
		}
	}
	if s.alarmMissed.Swap(false) && !slices.Contains(pending, os.Signal(syscall.SIGALRM)) {
		pending = append(pending, syscall.SIGALRM)
	}

	for _, sig := range pending {
		var err error
		switch sig {
		case syscall.SIGALRM:
			err = h.Alarm()
		case syscall.SIGCHLD:
			err = h.ReapChildren()
		case syscall.SIGTERM:
			err = h.Terminate()
		default:
			err = fmt.Errorf("unexpected signal %v", sig)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop disarms the timer and restores default signal handling. The
// channel is left open since a timer callback may still be running.
func (s *Signals) Stop() {
	s.alarm.Stop()
	stopFunc(s.ch)
}
