package model

import "time"

// ViolationKind names a monitored integrity breach.
type ViolationKind string

const (
	ViolationFullscreenExit   ViolationKind = "fullscreen_exit"
	ViolationWindowBlur       ViolationKind = "window_blur"
	ViolationMouseLeave       ViolationKind = "mouse_leave"
	ViolationKeyCombo         ViolationKind = "key_combo"
	ViolationPaste            ViolationKind = "paste"
	ViolationCopy             ViolationKind = "copy"
	ViolationCut              ViolationKind = "cut"
	ViolationTabHidden        ViolationKind = "tab_hidden"
	ViolationStorageCleared   ViolationKind = "storage_cleared"
	ViolationFullscreenDenied ViolationKind = "fullscreen_denied"
)

// ViolationEvent is one recorded breach, queued to Redis and batch-persisted
// to PostgreSQL by the violation worker.
type ViolationEvent struct {
	SessionID    string        `json:"session_id"`
	AssignmentID int           `json:"assignment_id"`
	Kind         ViolationKind `json:"kind"`
	Detail       string        `json:"detail,omitempty"`
	AnomalyScore float64       `json:"anomaly_score"`
	Timestamp    int64         `json:"timestamp"`
}

// OccurredAt converts the wire timestamp back to a time.Time.
func (v ViolationEvent) OccurredAt() time.Time {
	return time.Unix(v.Timestamp, 0)
}

// ActivityEvent is one best-effort behavioral observation (key cadence,
// focus changes, clipboard use) forwarded to the monitoring collaborator and
// persisted for later analysis. Never blocks the exam flow.
type ActivityEvent struct {
	SessionID    string  `json:"session_id"`
	AssignmentID int     `json:"assignment_id"`
	EventType    string  `json:"event_type"`
	EventMessage string  `json:"event_message"`
	AnomalyScore float64 `json:"anomaly_score"`
	Timestamp    int64   `json:"timestamp"`
}
