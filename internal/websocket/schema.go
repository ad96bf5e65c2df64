package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionFullscreenChange Action = "fullscreen_change"
	ActionBlur             Action = "blur"
	ActionFocus            Action = "focus"
	ActionMouseLeave       Action = "mouse_leave"
	ActionKeyCombo         Action = "key_combo"
	ActionPaste            Action = "paste"
	ActionCopy             Action = "copy"
	ActionCut              Action = "cut"
	ActionVisibility       Action = "visibility"
	ActionFrame            Action = "frame"
	ActionAudioChunk       Action = "audio_chunk"
	ActionActivity         Action = "activity"
	ActionPing             Action = "ping"
)

// ClientMessage is one browser report. Action discriminates which of the
// optional fields carry data.
type ClientMessage struct {
	Action Action `json:"action"`

	// fullscreen_change
	Entered bool `json:"entered,omitempty"`

	// visibility
	Hidden bool `json:"hidden,omitempty"`

	// mouse_leave: whether the pointer left toward another element on the
	// page. Leaving with no related target is the second-monitor heuristic.
	HasRelatedTarget bool `json:"has_related_target,omitempty"`

	// key_combo, normalized like "ctrl+c".
	Combo string `json:"combo,omitempty"`

	// frame / audio_chunk, base64.
	Data string `json:"data,omitempty"`

	// activity
	EventType    string  `json:"event_type,omitempty"`
	EventMessage string  `json:"event_message,omitempty"`
	AnomalyScore float64 `json:"anomaly_score,omitempty"`

	Detail string `json:"detail,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventDirective Event = "directive"
	EventTick      Event = "tick"
	EventPong      Event = "pong"
	EventError     Event = "error"
)

// DirectiveMessage pushes one attempt-controller directive to the browser
// (overlay_show, overlay_hide, kicked, submitted, enter/release_fullscreen).
type DirectiveMessage struct {
	Event  Event  `json:"event"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// TickMessage carries the authoritative remaining time.
type TickMessage struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}
