package eventloop

import (
	"sync"
	"time"

	"github.com/sunlightlinux/slgreet/pkg/clock"
)

// AlarmTimer is a one-shot timer that can be re-armed. At most one expiry
// is outstanding; re-arming cancels the previous one.
type AlarmTimer struct {
	clock clock.Clock
	fire  func()

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
	armed bool
}

// NewAlarmTimer creates a disarmed timer that calls fire on expiry.
func NewAlarmTimer(clk clock.Clock, fire func()) *AlarmTimer {
	return &AlarmTimer{clock: clk, fire: fire}
}

// Arm starts the timer with the given duration.
// If already armed, it is stopped and re-armed.
func (t *AlarmTimer) Arm(d time.Duration) {
	t.mu.Lock()
	t.timer.Stop()
	t.gen++
	gen := t.gen
	t.armed = true
	t.mu.Unlock()

	timer := t.clock.AfterFunc(d, func() { t.expire(gen) })

	t.mu.Lock()
	if t.gen == gen {
		t.timer = timer
	}
	t.mu.Unlock()
}

func (t *AlarmTimer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.armed {
		// Superseded after the callback was already scheduled.
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.mu.Unlock()
	t.fire()
}

// Stop disarms the timer.
func (t *AlarmTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer.Stop()
	t.timer = nil
	t.gen++
	t.armed = false
}

// IsArmed returns true if the timer is currently armed.
func (t *AlarmTimer) IsArmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}
