package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorix/examgate/internal/attempt"
	"github.com/proctorix/examgate/internal/integrity"
	"github.com/proctorix/examgate/internal/model"
	"github.com/proctorix/examgate/internal/upstream"
	"github.com/proctorix/examgate/internal/worker"
)

var (
	ErrAttemptLockedOut = errors.New("attempt is locked out for this session")
	ErrAttemptSubmitted = errors.New("attempt was already submitted in this session")
	ErrNoActiveAttempt  = errors.New("no active attempt for this assignment")
	ErrTestUnavailable  = errors.New("test is not available right now")
)

// AttemptService orchestrates attempts for the REST surface and the proctor
// socket: listing with availability, controller creation guarded by the
// durable markers, and delegation to the live controller.
type AttemptService struct {
	exam      *upstream.ExamClient
	biometric *upstream.BiometricClient
	pipeline  *upstream.Pipeline
	registry  *attempt.Registry
	markers   integrity.MarkerStore
	queue     *worker.Queue
	log       zerolog.Logger

	grace          time.Duration
	strikes        int
	mediaRate      float64
	newMediaSender func() attempt.MediaSender
}

type AttemptServiceConfig struct {
	Exam      *upstream.ExamClient
	Biometric *upstream.BiometricClient
	Pipeline  *upstream.Pipeline
	Registry  *attempt.Registry
	Markers   integrity.MarkerStore
	Queue     *worker.Queue
	Grace     time.Duration
	Strikes   int
	MediaRate float64
}

func NewAttemptService(cfg AttemptServiceConfig, log zerolog.Logger) *AttemptService {
	s := &AttemptService{
		exam:      cfg.Exam,
		biometric: cfg.Biometric,
		pipeline:  cfg.Pipeline,
		registry:  cfg.Registry,
		markers:   cfg.Markers,
		queue:     cfg.Queue,
		grace:     cfg.Grace,
		strikes:   cfg.Strikes,
		mediaRate: cfg.MediaRate,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
	s.newMediaSender = func() attempt.MediaSender {
		return upstream.NewMonitorClient(cfg.Pipeline, cfg.MediaRate, log)
	}
	return s
}

// List returns the student's assignments with the availability computation:
// the attempt budget, the scheduling window, and this session's markers.
func (s *AttemptService) List(ctx context.Context, sid string) ([]model.AssignmentSummary, error) {
	summaries, err := s.exam.ListAssignments(ctx, sid)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range summaries {
		sum := &summaries[i]
		if sum.Test.AllowedAttempts != nil && sum.AttemptNo >= *sum.Test.AllowedAttempts {
			sum.OutOfAttempts = true
		}

		kicked, _, err := s.markers.IsKicked(ctx, sid, sum.AssignmentID)
		if err != nil {
			return nil, err
		}
		submitted, _, err := s.markers.GetSubmitted(ctx, sid, sum.AssignmentID)
		if err != nil {
			return nil, err
		}

		sum.Available = sum.Test.ActiveAt(now) && !sum.OutOfAttempts && !kicked &&
			!(submitted && sum.Test.Type != model.TestTypeTraining)
	}
	return summaries, nil
}

// Start creates (or returns) the controller for one assignment. Re-entry
// after a lockout or a submission in the same browser session is refused so
// a page reload cannot restart a terminated attempt.
func (s *AttemptService) Start(ctx context.Context, sid string, assignmentID int) (attempt.Snapshot, error) {
	kicked, _, err := s.markers.IsKicked(ctx, sid, assignmentID)
	if err != nil {
		return attempt.Snapshot{}, err
	}
	if kicked {
		return attempt.Snapshot{}, ErrAttemptLockedOut
	}

	submitted, attemptType, err := s.markers.GetSubmitted(ctx, sid, assignmentID)
	if err != nil {
		return attempt.Snapshot{}, err
	}
	if submitted && attemptType != string(model.TestTypeTraining) {
		return attempt.Snapshot{}, ErrAttemptSubmitted
	}

	if ctrl, ok := s.registry.Get(sid, assignmentID); ok {
		return ctrl.Snapshot(), nil
	}

	paper, err := s.exam.FetchPaper(ctx, sid, assignmentID)
	if err != nil {
		return attempt.Snapshot{}, err
	}
	if !paper.Test.ActiveAt(time.Now()) {
		return attempt.Snapshot{}, ErrTestUnavailable
	}

	ctrl, created := s.registry.GetOrCreate(sid, assignmentID, func() *attempt.Controller {
		return attempt.New(attempt.Config{
			SID:      sid,
			Paper:    paper,
			Markers:  s.markers,
			Submit:   s.exam,
			Verifier: s.biometric,
			Queue:    s.queue,
			Media:    s.newMediaSender(),
			Log:      s.log,
			Grace:    s.grace,
			Strikes:  s.strikes,
		})
	})
	if created {
		s.log.Info().Int("assignment_id", assignmentID).Msg("attempt controller created")
	}
	return ctrl.Snapshot(), nil
}

// Controller returns the live controller for the pair.
func (s *AttemptService) Controller(sid string, assignmentID int) (*attempt.Controller, error) {
	ctrl, ok := s.registry.Get(sid, assignmentID)
	if !ok {
		return nil, ErrNoActiveAttempt
	}
	return ctrl, nil
}

// VerifyFace runs the attempt-level face gate through the controller.
func (s *AttemptService) VerifyFace(ctx context.Context, sid string, assignmentID int, faceImage string) (bool, error) {
	ctrl, err := s.Controller(sid, assignmentID)
	if err != nil {
		return false, err
	}
	return ctrl.VerifyFace(ctx, faceImage)
}

// FullscreenResult reports the browser's fullscreen outcome.
func (s *AttemptService) FullscreenResult(ctx context.Context, sid string, assignmentID int, entered bool, reason string) error {
	ctrl, err := s.Controller(sid, assignmentID)
	if err != nil {
		return err
	}
	return ctrl.FullscreenResult(ctx, entered, reason)
}

// State returns the attempt snapshot for rehydration after a reload.
func (s *AttemptService) State(sid string, assignmentID int) (attempt.Snapshot, error) {
	ctrl, err := s.Controller(sid, assignmentID)
	if err != nil {
		return attempt.Snapshot{}, err
	}
	return ctrl.Snapshot(), nil
}

// SaveAnswer stores one validated answer.
func (s *AttemptService) SaveAnswer(sid string, assignmentID int, req model.SaveAnswerRequest) error {
	ctrl, err := s.Controller(sid, assignmentID)
	if err != nil {
		return err
	}
	return ctrl.SaveAnswer(req)
}

// Navigate moves the attempt cursor.
func (s *AttemptService) Navigate(sid string, assignmentID int, req model.NavigateRequest) (int, error) {
	ctrl, err := s.Controller(sid, assignmentID)
	if err != nil {
		return 0, err
	}
	return ctrl.Navigate(req)
}

// Finish is the candidate-initiated submission; Done controllers are
// dropped from the registry.
func (s *AttemptService) Finish(ctx context.Context, sid string, assignmentID int) error {
	ctrl, err := s.Controller(sid, assignmentID)
	if err != nil {
		return err
	}
	err = ctrl.Finish(ctx)
	if ctrl.State() == attempt.StateDone {
		s.registry.Remove(sid, assignmentID)
	}
	return err
}

// RecordActivity queues one behavioral observation and forwards it to the
// monitoring collaborator. Best-effort on both legs.
func (s *AttemptService) RecordActivity(ctx context.Context, sid string, assignmentID int, ev model.ActivityEvent) {
	ev.SessionID = sid
	ev.AssignmentID = assignmentID
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}
	if err := s.queue.EnqueueActivity(ctx, ev); err != nil {
		s.log.Error().Err(err).Msg("failed to queue activity event")
	}
	if ctrl, ok := s.registry.Get(sid, assignmentID); ok {
		if media := ctrl.Media(); media != nil {
			media.SendActivity(ctx, sid, ev)
		}
	}
}
