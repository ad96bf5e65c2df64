package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorix/examgate/internal/integrity"
	"github.com/proctorix/examgate/internal/model"
)

// State is the controller's position in the attempt lifecycle.
type State string

const (
	StatePendingVerification State = "PENDING_VERIFICATION"
	StateVerifying           State = "VERIFYING"
	StateInProgress          State = "IN_PROGRESS"
	StateSubmitting          State = "SUBMITTING"
	StateDone                State = "DONE"
)

var (
	ErrNotInProgress      = errors.New("attempt is not in progress")
	ErrAlreadySubmitted   = errors.New("attempt was already submitted")
	ErrVerificationState  = errors.New("attempt is not awaiting verification")
	ErrQuestionOutOfRange = errors.New("question index out of range")
	ErrQuestionUnknown    = errors.New("question does not belong to this attempt")
)

// Submitter performs the single upstream submission call.
type Submitter interface {
	SubmitAnswers(ctx context.Context, sid string, assignmentID int, answers []model.SubmittedAnswer) error
}

// FaceVerifier fronts the biometric collaborator.
type FaceVerifier interface {
	Verify(ctx context.Context, sid, faceImage string, assignmentID int) (bool, error)
}

// ViolationQueue accepts violation events for batch persistence.
type ViolationQueue interface {
	Enqueue(ctx context.Context, ev model.ViolationEvent) error
}

// MediaSender forwards best-effort media and activity uploads and is
// closed on every attempt exit path so no capture keeps streaming.
type MediaSender interface {
	SendFrame(ctx context.Context, sid string, assignmentID int, frame string)
	SendAudioChunk(ctx context.Context, sid string, assignmentID int, chunk string)
	SendActivity(ctx context.Context, sid string, ev model.ActivityEvent)
	Close()
}

// DirectiveKind names an instruction pushed to the browser.
type DirectiveKind string

const (
	DirectiveEnterFullscreen   DirectiveKind = "enter_fullscreen"
	DirectiveReleaseFullscreen DirectiveKind = "release_fullscreen"
	DirectiveOverlayShow       DirectiveKind = "overlay_show"
	DirectiveOverlayHide       DirectiveKind = "overlay_hide"
	DirectiveKicked            DirectiveKind = "kicked"
	DirectiveSubmitted         DirectiveKind = "submitted"
)

// Directive is one instruction for the client, delivered over the proctor
// socket when one is attached and dropped otherwise.
type Directive struct {
	Kind   DirectiveKind `json:"kind"`
	Reason string        `json:"reason,omitempty"`
}

// Config wires one controller. Paper, Markers and Submitter are required;
// the rest default to inert implementations so the core stays testable
// without transport or Redis.
type Config struct {
	SID      string
	Paper    *model.AttemptPaper
	Markers  integrity.MarkerStore
	Submit   Submitter
	Verifier FaceVerifier
	Queue    ViolationQueue
	Media    MediaSender
	Clock    integrity.Clock
	Log      zerolog.Logger
	Grace    time.Duration
	Strikes  int
}

// Controller orchestrates a single attempt within one browser session:
// the face gate, the fullscreen gate, the countdown, answer collection,
// navigation, and the one-and-only submission. It owns the integrity
// monitor and translates its effects into persisted events and client
// directives.
type Controller struct {
	sid      string
	paper    *model.AttemptPaper
	markers  integrity.MarkerStore
	submit   Submitter
	verifier FaceVerifier
	queue    ViolationQueue
	media    MediaSender
	clock    integrity.Clock
	log      zerolog.Logger

	monitor   *integrity.Monitor
	countdown *Countdown

	mu        sync.Mutex
	state     State
	cursor    int
	answers   map[int]model.AnswerValue
	proctored bool
	kicked    bool

	dmu  sync.Mutex
	sink func(Directive)

	cleanupOnce sync.Once
}

// New creates a controller in StatePendingVerification.
func New(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = integrity.RealClock()
	}
	c := &Controller{
		sid:      cfg.SID,
		paper:    cfg.Paper,
		markers:  cfg.Markers,
		submit:   cfg.Submit,
		verifier: cfg.Verifier,
		queue:    cfg.Queue,
		media:    cfg.Media,
		clock:    cfg.Clock,
		log:      cfg.Log.With().Str("component", "attempt_controller").Int("assignment_id", cfg.Paper.AssignmentID).Logger(),
		state:    StatePendingVerification,
		answers:  make(map[int]model.AnswerValue),
		sink:     func(Directive) {},
	}
	c.monitor = integrity.NewMonitor(cfg.SID, cfg.Paper.AssignmentID, cfg.Strikes, cfg.Grace, cfg.Clock, c.handleEffect)
	c.countdown = NewCountdown(cfg.Clock, c.onExpired)
	return c
}

// SetDirectiveSink attaches (or replaces) the directive consumer, typically
// the proctor socket writer. A nil sink detaches it.
func (c *Controller) SetDirectiveSink(fn func(Directive)) {
	c.dmu.Lock()
	defer c.dmu.Unlock()
	if fn == nil {
		fn = func(Directive) {}
	}
	c.sink = fn
}

func (c *Controller) direct(d Directive) {
	c.dmu.Lock()
	fn := c.sink
	c.dmu.Unlock()
	fn(d)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AssignmentID returns the upstream assignment this controller runs.
func (c *Controller) AssignmentID() int {
	return c.paper.AssignmentID
}

// AllowsCopyPaste reports whether the test tolerates clipboard use.
func (c *Controller) AllowsCopyPaste() bool {
	return c.paper.Test.AllowCopyPaste
}

// Media returns the attempt's media sender, nil when none was wired.
func (c *Controller) Media() MediaSender {
	return c.media
}

// Remaining returns the time left on the attempt countdown.
func (c *Controller) Remaining() time.Duration {
	return c.countdown.Remaining()
}

// Snapshot is the client-facing view of the attempt.
type Snapshot struct {
	State            State                     `json:"state"`
	AssignmentID     int                       `json:"assignment_id"`
	CurrentIndex     int                       `json:"current_index"`
	QuestionCount    int                       `json:"question_count"`
	RemainingSeconds int                       `json:"remaining_seconds"`
	Proctored        bool                      `json:"proctored"`
	Question         *model.Question           `json:"question,omitempty"`
	Answers          map[int]model.AnswerValue `json:"answers"`
}

// Snapshot returns the current attempt view for the state endpoint and for
// rehydration after a page reload.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	answers := make(map[int]model.AnswerValue, len(c.answers))
	for k, v := range c.answers {
		answers[k] = v
	}

	snap := Snapshot{
		State:            c.state,
		AssignmentID:     c.paper.AssignmentID,
		CurrentIndex:     c.cursor,
		QuestionCount:    len(c.paper.Questions),
		RemainingSeconds: int(c.countdown.Remaining() / time.Second),
		Proctored:        c.proctored,
		Answers:          answers,
	}
	if c.cursor >= 0 && c.cursor < len(c.paper.Questions) {
		q := c.paper.Questions[c.cursor]
		snap.Question = &q
	}
	return snap
}

// VerifyFace runs the biometric gate. A false verdict with nil error means
// the candidate may retry; an error left the controller back in
// PendingVerification and is classified by the caller (auth errors end the
// whole session). On success the attempt either begins immediately or, for
// proctored tests, waits for the fullscreen result.
func (c *Controller) VerifyFace(ctx context.Context, faceImage string) (bool, error) {
	c.mu.Lock()
	if c.state != StatePendingVerification {
		c.mu.Unlock()
		return false, ErrVerificationState
	}
	c.state = StateVerifying
	c.mu.Unlock()

	ok, err := c.verifier.Verify(ctx, c.sid, faceImage, c.paper.AssignmentID)
	if err != nil || !ok {
		c.mu.Lock()
		c.state = StatePendingVerification
		c.mu.Unlock()
		return false, err
	}

	if c.paper.Test.UseProctoring {
		// Stay in Verifying until the browser reports the fullscreen
		// outcome.
		c.direct(Directive{Kind: DirectiveEnterFullscreen})
		return true, nil
	}

	c.begin(false)
	return true, nil
}

// FullscreenResult completes the proctoring gate. A denied fullscreen is not
// fatal: the attempt proceeds unproctored and the denial is recorded as a
// risk event.
func (c *Controller) FullscreenResult(ctx context.Context, entered bool, reason string) error {
	c.mu.Lock()
	if c.state != StateVerifying || !c.paper.Test.UseProctoring {
		c.mu.Unlock()
		return ErrVerificationState
	}
	c.mu.Unlock()

	if entered {
		c.begin(true)
		return nil
	}

	c.recordRisk(ctx, model.ViolationFullscreenDenied, reason, 0.5)
	c.begin(false)
	return nil
}

// begin starts the countdown and, for proctored runs, arms the monitor.
func (c *Controller) begin(proctored bool) {
	c.mu.Lock()
	c.state = StateInProgress
	c.proctored = proctored
	c.mu.Unlock()

	c.countdown.Start(time.Duration(c.paper.Test.DurationMinutes) * time.Minute)
	if proctored {
		c.monitor.Arm()
	}
	c.log.Info().Bool("proctored", proctored).Msg("attempt started")
}

// SaveAnswer validates and stores one answer keyed by question id.
func (c *Controller) SaveAnswer(req model.SaveAnswerRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return c.notInProgressLocked()
	}

	q, ok := c.questionByID(req.QuestionID)
	if !ok {
		return ErrQuestionUnknown
	}
	if err := req.Answer.ValidateFor(q); err != nil {
		return err
	}
	c.answers[req.QuestionID] = req.Answer
	return nil
}

// Navigate moves the cursor within the loaded question sequence and returns
// the new index.
func (c *Controller) Navigate(req model.NavigateRequest) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return 0, c.notInProgressLocked()
	}

	next := c.cursor
	switch req.Direction {
	case "next":
		next++
	case "prev":
		next--
	case "goto":
		next = req.Index
	default:
		return 0, fmt.Errorf("unknown navigation direction %q", req.Direction)
	}
	if next < 0 || next >= len(c.paper.Questions) {
		return 0, ErrQuestionOutOfRange
	}
	c.cursor = next
	return next, nil
}

// HandleProctorEvent feeds one browser observation into the monitor.
func (c *Controller) HandleProctorEvent(ev integrity.Event) {
	c.monitor.Handle(ev)
}

// MonitorState exposes the integrity state for the state endpoint.
func (c *Controller) MonitorState() integrity.State {
	return c.monitor.State()
}

// Finish is the candidate-initiated submission.
func (c *Controller) Finish(ctx context.Context) error {
	return c.finish(ctx, false, "finished")
}

// onExpired runs exactly once when the countdown elapses.
func (c *Controller) onExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.log.Info().Msg("attempt time elapsed, forcing submission")
	if err := c.finish(ctx, true, "time_elapsed"); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
		c.log.Error().Err(err).Msg("forced submission failed")
	}
}

// finish routes every exit through one submission path. The Submitting state
// is the idempotency guard: the first caller flips it, everyone else gets
// ErrAlreadySubmitted, and at most one upstream call is in flight. Forced
// terminations proceed to cleanup regardless of the submission outcome; a
// manual finish whose submission fails hands the attempt back to the
// learner so it can be retried.
func (c *Controller) finish(ctx context.Context, forced bool, reason string) error {
	c.mu.Lock()
	switch c.state {
	case StateSubmitting, StateDone:
		c.mu.Unlock()
		return ErrAlreadySubmitted
	case StateInProgress:
	case StateVerifying, StatePendingVerification:
		if !forced {
			c.mu.Unlock()
			return ErrNotInProgress
		}
		// Forced exit before the attempt began: nothing to submit.
		c.state = StateDone
		c.mu.Unlock()
		c.cleanup()
		return nil
	}
	c.state = StateSubmitting
	answers := c.assembleLocked()
	c.mu.Unlock()

	err := c.submit.SubmitAnswers(ctx, c.sid, c.paper.AssignmentID, answers)

	if err != nil && !forced {
		// Keep the attempt alive: countdown and monitor were never
		// stopped, the answers are intact, and Finish may be called
		// again once the upstream recovers.
		c.mu.Lock()
		c.state = StateInProgress
		c.mu.Unlock()
		c.log.Error().Err(err).Str("reason", reason).Msg("submission failed, attempt stays open")
		return err
	}

	c.mu.Lock()
	c.state = StateDone
	c.mu.Unlock()

	if err == nil {
		if merr := c.markers.SetSubmitted(ctx, c.sid, c.paper.AssignmentID, string(c.paper.Test.Type)); merr != nil {
			c.log.Error().Err(merr).Msg("failed to persist submitted marker")
		}
		c.direct(Directive{Kind: DirectiveSubmitted, Reason: reason})
	} else {
		c.log.Error().Err(err).Str("reason", reason).Msg("upstream submission failed")
	}

	c.cleanup()
	return err
}

// assembleLocked builds the per-variant submission payload. Caller holds mu.
func (c *Controller) assembleLocked() []model.SubmittedAnswer {
	out := make([]model.SubmittedAnswer, 0, len(c.answers))
	for _, q := range c.paper.Questions {
		a, ok := c.answers[q.ID]
		if !ok {
			continue
		}
		sub := model.SubmittedAnswer{QuestionID: q.ID}
		switch q.Type {
		case model.QuestionSingleChoice, model.QuestionMultipleChoice:
			sub.SelectedOptions = a.SelectedOptions
		case model.QuestionOpenText, model.QuestionCode:
			sub.AnswerText = a.Text
		}
		out = append(out, sub)
	}
	return out
}

// handleEffect consumes monitor effects. Runs on the caller's goroutine for
// Handle-driven transitions and on the timer goroutine for grace expiry.
func (c *Controller) handleEffect(e integrity.Effect) {
	switch e.Kind {
	case integrity.EffectRecord:
		if e.Violation != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.queue.Enqueue(ctx, *e.Violation); err != nil {
				c.log.Error().Err(err).Str("kind", string(e.Violation.Kind)).Msg("failed to queue violation event")
			}
			cancel()
		}
	case integrity.EffectShowOverlay:
		c.direct(Directive{Kind: DirectiveOverlayShow, Reason: e.Reason})
	case integrity.EffectHideOverlay:
		c.direct(Directive{Kind: DirectiveOverlayHide})
	case integrity.EffectStrikeConsumed:
		c.log.Info().Msg("violation strike consumed")
	case integrity.EffectKick:
		c.kick(e.Reason)
	}
}

// kick ends the attempt after a lockout: durable marker first, then the one
// forced submission, then exit.
func (c *Controller) kick(reason string) {
	c.mu.Lock()
	already := c.kicked
	c.kicked = true
	c.mu.Unlock()
	if already {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.markers.SetKicked(ctx, c.sid, c.paper.AssignmentID, reason); err != nil {
		c.log.Error().Err(err).Msg("failed to persist lockout marker")
	}
	c.direct(Directive{Kind: DirectiveKicked, Reason: reason})
	c.log.Warn().Str("reason", reason).Msg("candidate locked out")

	if err := c.finish(ctx, true, "locked_out"); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
		c.log.Error().Err(err).Msg("post-lockout submission failed")
	}
}

// Close tears the controller down without submitting, for logout and
// session expiry paths. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state != StateDone {
		c.state = StateDone
	}
	c.mu.Unlock()
	c.cleanup()
}

// cleanup releases every attempt resource: countdown, monitor, media
// senders, fullscreen. Runs once across all exit paths.
func (c *Controller) cleanup() {
	c.cleanupOnce.Do(func() {
		c.countdown.Stop()
		c.monitor.Close()
		if c.media != nil {
			c.media.Close()
		}
		c.direct(Directive{Kind: DirectiveReleaseFullscreen})
	})
}

func (c *Controller) recordRisk(ctx context.Context, kind model.ViolationKind, detail string, score float64) {
	ev := model.ViolationEvent{
		SessionID:    c.sid,
		AssignmentID: c.paper.AssignmentID,
		Kind:         kind,
		Detail:       detail,
		AnomalyScore: score,
		Timestamp:    c.clock.Now().Unix(),
	}
	if err := c.queue.Enqueue(ctx, ev); err != nil {
		c.log.Error().Err(err).Str("kind", string(kind)).Msg("failed to queue risk event")
	}
}

func (c *Controller) questionByID(id int) (model.Question, bool) {
	for _, q := range c.paper.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.Question{}, false
}

// notInProgressLocked maps the current state to the most specific error.
func (c *Controller) notInProgressLocked() error {
	switch c.state {
	case StateSubmitting, StateDone:
		return ErrAlreadySubmitted
	default:
		return ErrNotInProgress
	}
}
