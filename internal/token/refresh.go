package token

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrSessionExpired is returned to every caller whose session was terminated
// because a refresh failed or no refresh token was available. Callers must
// abort rather than retry.
var ErrSessionExpired = errors.New("session expired, re-authentication required")

// RefreshFunc exchanges a refresh token for a new access token and,
// optionally, a rotated refresh token. Implemented by upstream.AuthClient.
type RefreshFunc func(ctx context.Context, refreshToken string) (access, rotatedRefresh string, err error)

// flight is one in-progress refresh shared by every concurrent caller.
type flight struct {
	done  chan struct{}
	token string
	err   error
}

// Coordinator deduplicates concurrent refresh attempts per session: at most
// one network refresh call is outstanding at a time, and every caller that
// arrives while it is in flight awaits that same outcome.
type Coordinator struct {
	store   *Store
	refresh RefreshFunc
	log     zerolog.Logger

	mu       sync.Mutex
	inflight map[string]*flight

	// onTerminate, if set, observes session terminations (guard hooks,
	// metrics). Runs outside the coordinator lock.
	onTerminate func(sid string)
}

// NewCoordinator creates a refresh coordinator over the given store.
func NewCoordinator(store *Store, refresh RefreshFunc, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		refresh:  refresh,
		log:      log.With().Str("component", "refresh_coordinator").Logger(),
		inflight: make(map[string]*flight),
	}
}

// OnTerminate registers a hook invoked whenever a session is terminated.
func (c *Coordinator) OnTerminate(fn func(sid string)) {
	c.onTerminate = fn
}

// Refresh returns a fresh access token for the session. If a refresh is
// already in flight for this session the call joins it instead of issuing a
// second network call. Exactly one upstream attempt is made per trigger; on
// failure the credential is cleared and every waiter gets ErrSessionExpired.
func (c *Coordinator) Refresh(ctx context.Context, sid string) (string, error) {
	c.mu.Lock()
	if f, ok := c.inflight[sid]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.token, f.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	c.inflight[sid] = f
	c.mu.Unlock()

	f.token, f.err = c.doRefresh(ctx, sid)
	close(f.done)

	c.mu.Lock()
	delete(c.inflight, sid)
	c.mu.Unlock()

	return f.token, f.err
}

// doRefresh performs the single refresh attempt for a trigger.
func (c *Coordinator) doRefresh(ctx context.Context, sid string) (string, error) {
	cred, ok := c.store.Get(ctx, sid)
	if !ok || cred.RefreshToken == "" {
		// No refresh token locally: terminate immediately, no network call.
		c.log.Warn().Str("sid", sid).Msg("Refresh token missing, terminating session")
		c.terminate(ctx, sid)
		return "", ErrSessionExpired
	}

	access, rotated, err := c.refresh(ctx, cred.RefreshToken)
	if err != nil {
		// Single attempt per trigger. Network errors and upstream
		// rejections both end the session.
		c.log.Warn().Err(err).Str("sid", sid).Msg("Refresh failed, terminating session")
		c.terminate(ctx, sid)
		return "", ErrSessionExpired
	}

	if err := c.store.Rotate(ctx, sid, access, rotated); err != nil {
		c.log.Error().Err(err).Str("sid", sid).Msg("Failed to persist rotated credential")
	}

	c.log.Debug().Str("sid", sid).Bool("rotated_refresh", rotated != "").Msg("Access token refreshed")
	return access, nil
}

// Terminate destroys a session's credential state and fires the termination
// hook. Used by the coordinator itself and by the pipeline when a replayed
// request still comes back 401.
func (c *Coordinator) Terminate(ctx context.Context, sid string) {
	c.terminate(ctx, sid)
}

func (c *Coordinator) terminate(ctx context.Context, sid string) {
	c.store.Clear(ctx, sid)
	if c.onTerminate != nil {
		c.onTerminate(sid)
	}
}
