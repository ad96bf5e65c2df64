package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proctorix/examgate/internal/attempt"
	"github.com/proctorix/examgate/internal/model"
	"github.com/proctorix/examgate/internal/token"
	"github.com/proctorix/examgate/internal/upstream"
)

type memMarkers struct {
	mu        sync.Mutex
	kicked    map[string]string
	submitted map[string]string
}

func newMemMarkers() *memMarkers {
	return &memMarkers{kicked: make(map[string]string), submitted: make(map[string]string)}
}

func markerKey(sid string, assignmentID int) string {
	return fmt.Sprintf("%s:%d", sid, assignmentID)
}

func (m *memMarkers) SetKicked(_ context.Context, sid string, assignmentID int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kicked[markerKey(sid, assignmentID)] = reason
	return nil
}

func (m *memMarkers) IsKicked(_ context.Context, sid string, assignmentID int) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reason, ok := m.kicked[markerKey(sid, assignmentID)]
	return ok, reason, nil
}

func (m *memMarkers) SetSubmitted(_ context.Context, sid string, assignmentID int, attemptType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted[markerKey(sid, assignmentID)] = attemptType
	return nil
}

func (m *memMarkers) GetSubmitted(_ context.Context, sid string, assignmentID int) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	typ, ok := m.submitted[markerKey(sid, assignmentID)]
	return ok, typ, nil
}

// serviceHarness runs the attempt service against an httptest upstream with
// a real pipeline, so the marker checks and availability rules are exercised
// exactly as wired.
type serviceHarness struct {
	svc      *AttemptService
	markers  *memMarkers
	upstream atomic.Int32
}

func newServiceHarness(t *testing.T, upstreamHandler http.HandlerFunc) (*serviceHarness, func()) {
	t.Helper()
	h := &serviceHarness{markers: newMemMarkers()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.upstream.Add(1)
		upstreamHandler(w, r)
	}))

	store := token.NewStore(nil)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	signed, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), "sid-1", model.Credential{
		AccessToken:  signed,
		RefreshToken: "r1",
	}))

	coord := token.NewCoordinator(store, func(context.Context, string) (string, string, error) {
		return "", "", fmt.Errorf("unexpected refresh during attempt service test")
	}, zerolog.Nop())
	pipeline := upstream.NewPipeline(srv.URL, 5*time.Second, time.Minute, store, coord, zerolog.Nop())

	h.svc = NewAttemptService(AttemptServiceConfig{
		Exam:      upstream.NewExamClient(pipeline),
		Biometric: upstream.NewBiometricClient(pipeline),
		Pipeline:  pipeline,
		Registry:  attempt.NewRegistry(),
		Markers:   h.markers,
		Grace:     5 * time.Second,
		Strikes:   1,
		MediaRate: 1,
	}, zerolog.Nop())

	return h, srv.Close
}

func paperHandler(t *testing.T, test model.TestInfo) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		paper := model.AttemptPaper{
			Test: test,
			Questions: []model.Question{
				{ID: 1, Text: "q1", Type: model.QuestionSingleChoice, Options: []model.AnswerOption{
					{ID: 11, Text: "a", IsCorrect: true},
					{ID: 12, Text: "b"},
				}},
			},
			AttemptNo: 0,
		}
		require.NoError(t, json.NewEncoder(w).Encode(paper))
	}
}

func examTest() model.TestInfo {
	return model.TestInfo{ID: 1, Name: "finals", Type: model.TestTypeExam, DurationMinutes: 60}
}

func TestStartRefusedWhenKicked(t *testing.T) {
	h, stop := newServiceHarness(t, paperHandler(t, examTest()))
	defer stop()

	require.NoError(t, h.markers.SetKicked(context.Background(), "sid-1", 7, "key_combo"))

	_, err := h.svc.Start(context.Background(), "sid-1", 7)
	assert.ErrorIs(t, err, ErrAttemptLockedOut)
	assert.Equal(t, int32(0), h.upstream.Load(), "locked attempt must not reach upstream")
}

func TestStartRefusedWhenSubmitted(t *testing.T) {
	h, stop := newServiceHarness(t, paperHandler(t, examTest()))
	defer stop()

	require.NoError(t, h.markers.SetSubmitted(context.Background(), "sid-1", 7, string(model.TestTypeExam)))

	_, err := h.svc.Start(context.Background(), "sid-1", 7)
	assert.ErrorIs(t, err, ErrAttemptSubmitted)
	assert.Equal(t, int32(0), h.upstream.Load())
}

func TestStartAllowsTrainingRetake(t *testing.T) {
	training := examTest()
	training.Type = model.TestTypeTraining
	h, stop := newServiceHarness(t, paperHandler(t, training))
	defer stop()

	require.NoError(t, h.markers.SetSubmitted(context.Background(), "sid-1", 7, string(model.TestTypeTraining)))

	snap, err := h.svc.Start(context.Background(), "sid-1", 7)
	require.NoError(t, err)
	assert.Equal(t, attempt.StatePendingVerification, snap.State)
}

func TestStartRehydratesExistingController(t *testing.T) {
	h, stop := newServiceHarness(t, paperHandler(t, examTest()))
	defer stop()

	first, err := h.svc.Start(context.Background(), "sid-1", 7)
	require.NoError(t, err)
	assert.Equal(t, attempt.StatePendingVerification, first.State)
	assert.Equal(t, 7, first.AssignmentID)

	second, err := h.svc.Start(context.Background(), "sid-1", 7)
	require.NoError(t, err)
	assert.Equal(t, first.AssignmentID, second.AssignmentID)
	assert.Equal(t, int32(1), h.upstream.Load(), "reload must reuse the live controller, not refetch the paper")
}

func TestStartOutsideWindow(t *testing.T) {
	closed := examTest()
	deadline := time.Now().Add(-time.Hour)
	closed.Deadline = &deadline
	h, stop := newServiceHarness(t, paperHandler(t, closed))
	defer stop()

	_, err := h.svc.Start(context.Background(), "sid-1", 7)
	assert.ErrorIs(t, err, ErrTestUnavailable)
}

func TestListAvailability(t *testing.T) {
	one := 1
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	summaries := []model.AssignmentSummary{
		{AssignmentID: 1, Test: model.TestInfo{Type: model.TestTypeExam}},
		{AssignmentID: 2, Test: model.TestInfo{Type: model.TestTypeTraining, AllowedAttempts: &one}, AttemptNo: 1},
		{AssignmentID: 3, Test: model.TestInfo{Type: model.TestTypeExam}},
		{AssignmentID: 4, Test: model.TestInfo{Type: model.TestTypeExam}},
		{AssignmentID: 5, Test: model.TestInfo{Type: model.TestTypeTraining}},
		{AssignmentID: 6, Test: model.TestInfo{Type: model.TestTypeExam, StartTime: &future}},
		{AssignmentID: 7, Test: model.TestInfo{Type: model.TestTypeExam, Deadline: &past}},
	}

	h, stop := newServiceHarness(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"assignments": summaries})
	})
	defer stop()

	ctx := context.Background()
	require.NoError(t, h.markers.SetKicked(ctx, "sid-1", 3, "fullscreen_exit"))
	require.NoError(t, h.markers.SetSubmitted(ctx, "sid-1", 4, string(model.TestTypeExam)))
	require.NoError(t, h.markers.SetSubmitted(ctx, "sid-1", 5, string(model.TestTypeTraining)))

	got, err := h.svc.List(ctx, "sid-1")
	require.NoError(t, err)
	require.Len(t, got, 7)

	available := make(map[int]bool, len(got))
	for _, sum := range got {
		available[sum.AssignmentID] = sum.Available
	}

	assert.True(t, available[1], "open window, no markers")
	assert.False(t, available[2], "attempt budget spent")
	assert.True(t, got[1].OutOfAttempts)
	assert.False(t, available[3], "kicked in this session")
	assert.False(t, available[4], "exam already submitted")
	assert.True(t, available[5], "training is retakable after submission")
	assert.False(t, available[6], "not yet open")
	assert.False(t, available[7], "past deadline")
}

func TestStartServesSanitizedQuestions(t *testing.T) {
	h, stop := newServiceHarness(t, paperHandler(t, examTest()))
	defer stop()

	snap, err := h.svc.Start(context.Background(), "sid-1", 7)
	require.NoError(t, err)
	require.NotNil(t, snap.Question)
	require.Len(t, snap.Question.Options, 2)
	for _, opt := range snap.Question.Options {
		assert.False(t, opt.IsCorrect, "grading flags must never leave the gateway")
	}
}
