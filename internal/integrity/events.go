package integrity

import "github.com/proctorix/examgate/internal/model"

// EventKind names one browser-reported proctoring observation.
type EventKind string

const (
	// Violations.
	EventFullscreenExit EventKind = "fullscreen_exit"
	EventWindowBlur     EventKind = "window_blur"
	EventMouseLeave     EventKind = "mouse_leave"
	EventKeyCombo       EventKind = "key_combo"
	EventPaste          EventKind = "paste"
	EventCopy           EventKind = "copy"
	EventCut            EventKind = "cut"
	EventTabHidden      EventKind = "tab_hidden"

	// Recoveries.
	EventFullscreenEnter EventKind = "fullscreen_enter"
	EventWindowFocus     EventKind = "window_focus"
	EventTabVisible      EventKind = "tab_visible"
)

// Event is one observation delivered to the monitor, in browser firing order.
type Event struct {
	Kind   EventKind
	Detail string
}

// forbiddenCombos are the key combinations pre-empted at the input level
// where technically possible; any report of one is still a violation.
// Mirrors copy/paste/devtools/print/alt-tab class combinations.
var forbiddenCombos = map[string]bool{
	"ctrl+c": true, "ctrl+v": true, "ctrl+x": true, "ctrl+u": true,
	"ctrl+s": true, "ctrl+a": true, "ctrl+r": true, "ctrl+p": true,
	"meta+c": true, "meta+v": true, "meta+x": true, "meta+u": true,
	"meta+s": true, "meta+a": true, "meta+r": true, "meta+p": true,
	"f12": true, "f11": true, "escape": true,
	"alt+tab": true, "alt+f4": true,
}

// ForbiddenCombo reports whether a normalized key combination is banned
// during a proctored attempt.
func ForbiddenCombo(combo string) bool {
	return forbiddenCombos[combo]
}

// IsViolation reports whether the event kind escalates the state machine.
func (e Event) IsViolation() bool {
	switch e.Kind {
	case EventFullscreenExit, EventWindowBlur, EventMouseLeave,
		EventKeyCombo, EventPaste, EventCopy, EventCut, EventTabHidden:
		return true
	}
	return false
}

// IsRecovery reports whether the event restores a required condition.
func (e Event) IsRecovery() bool {
	switch e.Kind {
	case EventFullscreenEnter, EventWindowFocus, EventTabVisible:
		return true
	}
	return false
}

// violationKind maps an event to its persisted violation kind.
func (e Event) violationKind() model.ViolationKind {
	switch e.Kind {
	case EventFullscreenExit:
		return model.ViolationFullscreenExit
	case EventWindowBlur:
		return model.ViolationWindowBlur
	case EventMouseLeave:
		return model.ViolationMouseLeave
	case EventKeyCombo:
		return model.ViolationKeyCombo
	case EventPaste:
		return model.ViolationPaste
	case EventCopy:
		return model.ViolationCopy
	case EventCut:
		return model.ViolationCut
	case EventTabHidden:
		return model.ViolationTabHidden
	default:
		return model.ViolationKind(e.Kind)
	}
}

// anomalyScore mirrors the weighting the monitoring collaborator expects
// per event class.
func (e Event) anomalyScore() float64 {
	switch e.Kind {
	case EventPaste:
		return 0.8
	case EventMouseLeave:
		return 0.8
	case EventTabHidden:
		return 0.7
	case EventCopy, EventCut, EventKeyCombo:
		return 0.6
	case EventWindowBlur:
		return 0.6
	case EventFullscreenExit:
		return 0.9
	default:
		return 0.1
	}
}

// EffectKind names a side effect a transition asks its owner to perform.
// The state machine itself touches no transport or storage.
type EffectKind string

const (
	// EffectShowOverlay directs the client to show the one-chance
	// recovery prompt.
	EffectShowOverlay EffectKind = "show_overlay"
	// EffectHideOverlay dismisses the recovery prompt.
	EffectHideOverlay EffectKind = "hide_overlay"
	// EffectKick ends the attempt: write the durable marker, alert the
	// candidate, force navigation out.
	EffectKick EffectKind = "kick"
	// EffectRecord persists a violation event.
	EffectRecord EffectKind = "record"
	// EffectStrikeConsumed reports that the one tolerated violation was
	// spent on a timely recovery.
	EffectStrikeConsumed EffectKind = "strike_consumed"
)

// Effect is one side-effect descriptor yielded by a transition.
type Effect struct {
	Kind      EffectKind
	Reason    string
	Violation *model.ViolationEvent
}
