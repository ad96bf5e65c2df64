package model

import "time"

// TestType enumerates the kinds of tests the upstream platform schedules.
type TestType string

const (
	TestTypeExam     TestType = "exam"
	TestTypeSeminar  TestType = "seminar"
	TestTypeTraining TestType = "training"
)

// TestInfo is the attempt-relevant subset of a test's configuration.
type TestInfo struct {
	ID                 int        `json:"id"`
	Name               string     `json:"name"`
	Type               TestType   `json:"type"`
	DurationMinutes    int        `json:"duration_minutes"`
	AllowedAttempts    *int       `json:"allowed_attempts,omitempty"`
	UseProctoring      bool       `json:"use_proctoring"`
	AllowCopyPaste     bool       `json:"allow_copy_paste"`
	HasAIAssistant     bool       `json:"has_ai_assistant"`
	AllowSoundAnalysis bool       `json:"allow_sound_analysis"`
	ShowResult         bool       `json:"show_result"`
	StartTime          *time.Time `json:"start_time,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
}

// ActiveAt reports whether the test window is open at the given instant.
// Tests without an explicit window are always open.
func (t TestInfo) ActiveAt(now time.Time) bool {
	if t.StartTime != nil && now.Before(*t.StartTime) {
		return false
	}
	if t.Deadline != nil && now.After(*t.Deadline) {
		return false
	}
	return true
}

// AttemptPaper is the full material for one attempt: test configuration plus
// the ordered question sequence, fetched from upstream by assignment id.
type AttemptPaper struct {
	AssignmentID int        `json:"assignment_id"`
	Test         TestInfo   `json:"test"`
	Questions    []Question `json:"questions"`
	AttemptNo    int        `json:"attempt_no"`
}

// AssignmentSummary is one row of the student's test listing, with the
// availability computation the dashboard needs.
type AssignmentSummary struct {
	AssignmentID  int      `json:"assignment_id"`
	Test          TestInfo `json:"test"`
	AttemptNo     int      `json:"attempt_no"`
	FinishedAt    *string  `json:"finished_at,omitempty"`
	AutoScore     *float64 `json:"auto_score,omitempty"`
	ManualScore   *float64 `json:"manual_score,omitempty"`
	OutOfAttempts bool     `json:"out_of_attempts"`
	Available     bool     `json:"available"`
}

// SaveAnswerRequest is the payload for storing one answer during an attempt.
type SaveAnswerRequest struct {
	QuestionID int         `json:"question_id" binding:"required,min=1"`
	Answer     AnswerValue `json:"answer"`
}

// NavigateRequest moves the attempt cursor within the question sequence.
type NavigateRequest struct {
	Direction string `json:"direction" binding:"required,oneof=next prev goto"`
	Index     int    `json:"index" binding:"min=0"`
}

// FullscreenResultRequest reports whether the browser granted fullscreen.
type FullscreenResultRequest struct {
	Entered bool   `json:"entered"`
	Reason  string `json:"reason,omitempty"`
}
