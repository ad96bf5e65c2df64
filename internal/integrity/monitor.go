package integrity

import (
	"sync"
	"time"

	"github.com/proctorix/examgate/internal/model"
)

// State is the integrity monitor's position in its lifecycle.
type State string

const (
	// StateInactive: no proctoring in effect.
	StateInactive State = "INACTIVE"
	// StateArmed: proctoring enabled, fullscreen entered, watching.
	StateArmed State = "ARMED"
	// StateWarned: a violation occurred; the one-chance recovery prompt
	// is showing and the grace window is running.
	StateWarned State = "WARNED"
	// StateLockedOut: terminal. The durable marker is written and the
	// candidate is barred from the attempt.
	StateLockedOut State = "LOCKED_OUT"
)

// Monitor is the violation state machine for one exam attempt. Events are
// processed in browser firing order; transitions yield side-effect
// descriptors through the sink rather than performing I/O themselves.
// Handlers are idempotent under rapid repeated events, and every transition
// out of Armed clears the prior grace timer before arming a new one.
type Monitor struct {
	sid          string
	assignmentID int
	grace        time.Duration
	clock        Clock
	sink         func(Effect)

	mu         sync.Mutex
	state      State
	strikes    int
	graceTimer Timer
	graceGen   uint64
	closed     bool
}

// NewMonitor creates a monitor in StateInactive. The sink receives effect
// descriptors both from Handle calls and from grace-timer expiry; it must
// not call back into the monitor.
func NewMonitor(sid string, assignmentID, strikes int, grace time.Duration, clock Clock, sink func(Effect)) *Monitor {
	if clock == nil {
		clock = RealClock()
	}
	if sink == nil {
		sink = func(Effect) {}
	}
	return &Monitor{
		sid:          sid,
		assignmentID: assignmentID,
		grace:        grace,
		clock:        clock,
		sink:         sink,
		state:        StateInactive,
		strikes:      strikes,
	}
}

// Arm transitions Inactive→Armed. Called once proctoring is enabled for the
// attempt and fullscreen has been successfully entered. No-op otherwise.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state != StateInactive {
		return
	}
	m.state = StateArmed
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StrikesRemaining returns the unspent strike budget.
func (m *Monitor) StrikesRemaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strikes
}

// Handle processes one proctoring event and emits the resulting effects.
func (m *Monitor) Handle(ev Event) {
	m.mu.Lock()
	var effects []Effect

	switch {
	case m.closed, m.state == StateInactive, m.state == StateLockedOut:
		// Nothing to escalate; lockout is monotonic.

	case ev.IsViolation():
		effects = m.onViolation(ev)

	case ev.IsRecovery():
		effects = m.onRecovery(ev)
	}

	m.mu.Unlock()
	m.emit(effects)
}

// onViolation escalates per the strike budget. Caller holds the lock.
func (m *Monitor) onViolation(ev Event) []Effect {
	effects := []Effect{m.recordEffect(ev)}

	if m.state == StateWarned {
		// The overlay is already up and the deadline is running. Further
		// violations are recorded but cannot push the deadline out.
		return effects
	}

	if m.strikes > 0 {
		// First violation class: warn and open the grace window. The
		// strike is only consumed by a timely recovery.
		m.state = StateWarned
		m.startGraceTimer()
		effects = append(effects, Effect{Kind: EffectShowOverlay, Reason: string(ev.Kind)})
		return effects
	}

	// Budget exhausted. A mouse-leave on its own is an unreliable
	// second-monitor heuristic, so it may only open a recovery window;
	// lockout then requires the window to elapse unrecovered.
	if ev.Kind == EventMouseLeave {
		m.state = StateWarned
		m.startGraceTimer()
		effects = append(effects, Effect{Kind: EffectShowOverlay, Reason: string(ev.Kind)})
		return effects
	}

	return append(effects, m.lockOut(string(ev.Kind))...)
}

// onRecovery handles a restored condition. Caller holds the lock.
func (m *Monitor) onRecovery(Event) []Effect {
	if m.state != StateWarned {
		return nil
	}

	m.stopGraceTimer()
	m.state = StateArmed

	effects := []Effect{{Kind: EffectHideOverlay}}
	if m.strikes > 0 {
		m.strikes--
		effects = append(effects, Effect{Kind: EffectStrikeConsumed})
	}
	return effects
}

// lockOut performs the one-way transition. Caller holds the lock.
func (m *Monitor) lockOut(reason string) []Effect {
	m.stopGraceTimer()
	m.state = StateLockedOut
	return []Effect{{Kind: EffectKick, Reason: reason}}
}

// startGraceTimer arms the recovery window. Caller holds the lock.
func (m *Monitor) startGraceTimer() {
	m.graceGen++
	gen := m.graceGen
	m.graceTimer = m.clock.AfterFunc(m.grace, func() {
		m.onGraceExpired(gen)
	})
}

// stopGraceTimer cancels any pending window. Caller holds the lock.
func (m *Monitor) stopGraceTimer() {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
}

// onGraceExpired fires when the recovery window elapses without recovery.
func (m *Monitor) onGraceExpired(gen uint64) {
	m.mu.Lock()
	if m.closed || m.state != StateWarned || gen != m.graceGen {
		// Stale timer: the condition was restored or a newer window
		// superseded this one.
		m.mu.Unlock()
		return
	}
	effects := m.lockOut("grace window elapsed")
	m.mu.Unlock()
	m.emit(effects)
}

// Close removes the monitor from service: cancels the grace timer and drops
// all subsequent events. Idempotent regardless of the current state.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.stopGraceTimer()
}

func (m *Monitor) emit(effects []Effect) {
	for _, e := range effects {
		m.sink(e)
	}
}

func (m *Monitor) recordEffect(ev Event) Effect {
	return Effect{
		Kind:   EffectRecord,
		Reason: string(ev.Kind),
		Violation: &model.ViolationEvent{
			SessionID:    m.sid,
			AssignmentID: m.assignmentID,
			Kind:         ev.violationKind(),
			Detail:       ev.Detail,
			AnomalyScore: ev.anomalyScore(),
			Timestamp:    m.clock.Now().Unix(),
		},
	}
}
