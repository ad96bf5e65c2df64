package integrity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives AfterFunc timers by hand.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Advance moves time forward and fires due timers outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.deadline.After(c.now) {
			t.stopped = true
			due = append(due, t.fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

type effectRecorder struct {
	mu      sync.Mutex
	effects []Effect
}

func (r *effectRecorder) sink(e Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, e)
}

func (r *effectRecorder) kinds() []EffectKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EffectKind, 0, len(r.effects))
	for _, e := range r.effects {
		out = append(out, e.Kind)
	}
	return out
}

func (r *effectRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = nil
}

const testGrace = 5 * time.Second

func newTestMonitor(strikes int) (*Monitor, *fakeClock, *effectRecorder) {
	clock := newFakeClock()
	rec := &effectRecorder{}
	m := NewMonitor("sid-1", 42, strikes, testGrace, clock, rec.sink)
	return m, clock, rec
}

func TestMonitorIgnoresEventsBeforeArm(t *testing.T) {
	m, _, rec := newTestMonitor(1)

	m.Handle(Event{Kind: EventWindowBlur})

	assert.Equal(t, StateInactive, m.State())
	assert.Empty(t, rec.kinds())
}

func TestMonitorFirstViolationWarns(t *testing.T) {
	m, _, rec := newTestMonitor(1)
	m.Arm()

	m.Handle(Event{Kind: EventFullscreenExit})

	assert.Equal(t, StateWarned, m.State())
	assert.Equal(t, []EffectKind{EffectRecord, EffectShowOverlay}, rec.kinds())

	rec.mu.Lock()
	v := rec.effects[0].Violation
	rec.mu.Unlock()
	require.NotNil(t, v)
	assert.Equal(t, "sid-1", v.SessionID)
	assert.Equal(t, 42, v.AssignmentID)
	assert.InDelta(t, 0.9, v.AnomalyScore, 0.001)
}

func TestMonitorTimelyRecoveryConsumesStrike(t *testing.T) {
	m, clock, rec := newTestMonitor(1)
	m.Arm()

	m.Handle(Event{Kind: EventFullscreenExit})
	clock.Advance(2 * time.Second)
	rec.reset()
	m.Handle(Event{Kind: EventFullscreenEnter})

	assert.Equal(t, StateArmed, m.State())
	assert.Equal(t, 0, m.StrikesRemaining())
	assert.Equal(t, []EffectKind{EffectHideOverlay, EffectStrikeConsumed}, rec.kinds())

	// The original grace deadline must not fire after recovery.
	clock.Advance(testGrace)
	assert.Equal(t, StateArmed, m.State())
}

func TestMonitorGraceExpiryLocksOut(t *testing.T) {
	m, clock, rec := newTestMonitor(1)
	m.Arm()

	m.Handle(Event{Kind: EventWindowBlur})
	clock.Advance(testGrace)

	assert.Equal(t, StateLockedOut, m.State())
	assert.Equal(t, []EffectKind{EffectRecord, EffectShowOverlay, EffectKick}, rec.kinds())

	// Terminal: a late recovery changes nothing.
	rec.reset()
	m.Handle(Event{Kind: EventWindowFocus})
	assert.Equal(t, StateLockedOut, m.State())
	assert.Empty(t, rec.kinds())
}

func TestMonitorViolationAfterBudgetSpentLocksImmediately(t *testing.T) {
	m, clock, rec := newTestMonitor(1)
	m.Arm()

	m.Handle(Event{Kind: EventFullscreenExit})
	m.Handle(Event{Kind: EventFullscreenEnter})
	require.Equal(t, 0, m.StrikesRemaining())

	rec.reset()
	m.Handle(Event{Kind: EventPaste})

	assert.Equal(t, StateLockedOut, m.State())
	assert.Equal(t, []EffectKind{EffectRecord, EffectKick}, rec.kinds())

	clock.Advance(testGrace)
	assert.Equal(t, StateLockedOut, m.State())
}

func TestMonitorMouseLeaveNeverLocksDirectly(t *testing.T) {
	m, clock, rec := newTestMonitor(1)
	m.Arm()

	m.Handle(Event{Kind: EventMouseLeave})
	m.Handle(Event{Kind: EventWindowFocus})
	require.Equal(t, 0, m.StrikesRemaining())

	// With the budget spent, a mouse-leave alone only reopens the grace
	// window: the pointer crossing to a second monitor is too weak a
	// signal to end the attempt on.
	rec.reset()
	m.Handle(Event{Kind: EventMouseLeave})
	assert.Equal(t, StateWarned, m.State())
	assert.Equal(t, []EffectKind{EffectRecord, EffectShowOverlay}, rec.kinds())

	clock.Advance(testGrace)
	assert.Equal(t, StateLockedOut, m.State())
}

func TestMonitorViolationWhileWarnedKeepsDeadline(t *testing.T) {
	m, clock, rec := newTestMonitor(1)
	m.Arm()

	m.Handle(Event{Kind: EventWindowBlur})
	clock.Advance(3 * time.Second)
	rec.reset()
	m.Handle(Event{Kind: EventTabHidden})

	// The second violation is recorded without touching the deadline.
	assert.Equal(t, []EffectKind{EffectRecord}, rec.kinds())
	rec.mu.Lock()
	v := rec.effects[0].Violation
	rec.mu.Unlock()
	require.NotNil(t, v)
	assert.Equal(t, "tab_hidden", string(v.Kind))

	// 5s after the first violation, not 5s after the last one.
	clock.Advance(2 * time.Second)
	assert.Equal(t, StateLockedOut, m.State())
}

func TestMonitorViolationHammeringCannotOutrunDeadline(t *testing.T) {
	m, clock, _ := newTestMonitor(1)
	m.Arm()

	m.Handle(Event{Kind: EventFullscreenExit})
	for i := 0; i < 3; i++ {
		clock.Advance(4 * time.Second)
		if m.State() == StateLockedOut {
			break
		}
		m.Handle(Event{Kind: EventMouseLeave})
	}

	assert.Equal(t, StateLockedOut, m.State())
}

func TestMonitorRecoveryWhileArmedIsNoop(t *testing.T) {
	m, _, rec := newTestMonitor(1)
	m.Arm()

	m.Handle(Event{Kind: EventWindowFocus})

	assert.Equal(t, StateArmed, m.State())
	assert.Equal(t, 1, m.StrikesRemaining())
	assert.Empty(t, rec.kinds())
}

func TestMonitorCloseCancelsGraceTimer(t *testing.T) {
	m, clock, rec := newTestMonitor(1)
	m.Arm()

	m.Handle(Event{Kind: EventWindowBlur})
	m.Close()
	rec.reset()

	clock.Advance(testGrace)
	assert.Empty(t, rec.kinds())

	m.Handle(Event{Kind: EventPaste})
	assert.Empty(t, rec.kinds())

	m.Close() // idempotent
}

func TestMonitorConcurrentEvents(t *testing.T) {
	m, clock, rec := newTestMonitor(1)
	m.Arm()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Handle(Event{Kind: EventWindowBlur})
		}()
	}
	wg.Wait()

	// Rapid repeated violations of the same class collapse into one
	// warned state with a single running window.
	assert.Equal(t, StateWarned, m.State())

	clock.Advance(testGrace)
	assert.Equal(t, StateLockedOut, m.State())

	kicks := 0
	for _, k := range rec.kinds() {
		if k == EffectKick {
			kicks++
		}
	}
	assert.Equal(t, 1, kicks)
}

func TestForbiddenCombo(t *testing.T) {
	assert.True(t, ForbiddenCombo("ctrl+c"))
	assert.True(t, ForbiddenCombo("meta+v"))
	assert.True(t, ForbiddenCombo("f12"))
	assert.True(t, ForbiddenCombo("alt+tab"))
	assert.False(t, ForbiddenCombo("ctrl+z"))
	assert.False(t, ForbiddenCombo("shift+a"))
}
