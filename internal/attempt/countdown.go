package attempt

import (
	"sync"
	"time"

	"github.com/proctorix/examgate/internal/integrity"
)

// Countdown runs one attempt's timer. The expiry callback fires exactly once
// no matter how Stop, the timer goroutine, and restart attempts interleave.
type Countdown struct {
	clock  integrity.Clock
	expire func()

	mu       sync.Mutex
	once     sync.Once
	timer    integrity.Timer
	deadline time.Time
	started  bool
	stopped  bool
}

// NewCountdown creates an unstarted countdown. onExpire runs on the timer
// goroutine.
func NewCountdown(clock integrity.Clock, onExpire func()) *Countdown {
	if clock == nil {
		clock = integrity.RealClock()
	}
	return &Countdown{clock: clock, expire: onExpire}
}

// Start arms the timer. Subsequent calls are ignored.
func (c *Countdown) Start(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.deadline = c.clock.Now().Add(d)
	c.timer = c.clock.AfterFunc(d, c.fire)
}

func (c *Countdown) fire() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()
	c.once.Do(c.expire)
}

// Stop cancels the timer without firing. Safe to call at any point,
// including concurrently with expiry; the callback still runs at most once.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// Burn the once so a racing fire cannot run the callback later.
	c.once.Do(func() {})
}

// Remaining returns the time left, clamped at zero. Zero before Start.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0
	}
	left := c.deadline.Sub(c.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}
