package upstream

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/proctorix/examgate/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MonitorClient forwards best-effort monitoring uploads (camera frames,
// audio chunks, activity events) to the proctoring collaborators. Uploads
// are throttled per client, failures are logged and never block the exam
// flow. Close stops the client on every attempt exit path; a closed client
// drops everything, which is how the gateway guarantees no capture keeps
// streaming after submission or lockout.
type MonitorClient struct {
	p       *Pipeline
	limiter *rate.Limiter
	closed  atomic.Bool
	log     zerolog.Logger
}

// NewMonitorClient creates a monitoring sender throttled to eventsPerSec.
func NewMonitorClient(p *Pipeline, eventsPerSec float64, log zerolog.Logger) *MonitorClient {
	return &MonitorClient{
		p:       p,
		limiter: rate.NewLimiter(rate.Limit(eventsPerSec), int(eventsPerSec)+1),
		log:     log.With().Str("component", "monitor_client").Logger(),
	}
}

// SendActivity forwards one behavioral observation.
func (c *MonitorClient) SendActivity(ctx context.Context, sid string, ev model.ActivityEvent) {
	c.post(ctx, sid, "/proctoring/mouse_keyboard_check/", ev)
}

// SendFrame forwards one camera frame for face/attention analysis.
func (c *MonitorClient) SendFrame(ctx context.Context, sid string, assignmentID int, frame string) {
	c.post(ctx, sid, "/proctoring/webcamera_check/", map[string]interface{}{
		"assignment_id": assignmentID,
		"frame":         frame,
	})
}

// SendAudioChunk forwards one audio sample for sound analysis.
func (c *MonitorClient) SendAudioChunk(ctx context.Context, sid string, assignmentID int, chunk string) {
	c.post(ctx, sid, "/proctoring/audio_check/", map[string]interface{}{
		"assignment_id": assignmentID,
		"chunk":         chunk,
	})
}

// Close stops the client. Safe to call repeatedly from any exit path.
func (c *MonitorClient) Close() {
	c.closed.Store(true)
}

// Closed reports whether the client has been stopped.
func (c *MonitorClient) Closed() bool {
	return c.closed.Load()
}

func (c *MonitorClient) post(ctx context.Context, sid, path string, payload interface{}) {
	if c.closed.Load() {
		return
	}
	if !c.limiter.Allow() {
		c.log.Debug().Str("path", path).Msg("Monitoring upload dropped by throttle")
		return
	}

	if err := c.p.Do(ctx, sid, http.MethodPost, path, payload, nil); err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("Monitoring upload failed")
	}
}
