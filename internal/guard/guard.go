// Package guard resolves what a browser session is allowed to reach:
// nothing, the verification step, or the exam flow itself.
package guard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorix/examgate/internal/model"
)

// Status is the resolved authentication level of a browser session.
type Status string

const (
	// StatusUnknown: not resolved yet.
	StatusUnknown Status = "UNKNOWN"
	// StatusUnauthenticated: no usable credential; only login is reachable.
	StatusUnauthenticated Status = "UNAUTHENTICATED"
	// StatusUnverified: credential present but the face gate has not
	// passed; only the verification step is reachable.
	StatusUnverified Status = "AUTHENTICATED_UNVERIFIED"
	// StatusFull: credential present and identity verified.
	StatusFull Status = "FULLY_AUTHENTICATED"
)

// SessionReader is the persisted session state the guard decides from.
type SessionReader interface {
	Credential(ctx context.Context, sid string) (model.Credential, bool, error)
	User(ctx context.Context, sid string) (model.User, bool, error)
}

// Guard resolves session status. A missing credential on a session that was
// authenticated before is re-checked once after a short debounce, because a
// concurrent refresh briefly removes and rewrites the credential; only a
// credential still missing after the debounce forces Unauthenticated.
type Guard struct {
	reader   SessionReader
	debounce time.Duration
	sleep    func(time.Duration)
	log      zerolog.Logger
}

func New(reader SessionReader, debounce time.Duration, log zerolog.Logger) *Guard {
	return &Guard{
		reader:   reader,
		debounce: debounce,
		sleep:    time.Sleep,
		log:      log.With().Str("component", "session_guard").Logger(),
	}
}

// Resolve maps the session's persisted state to a concrete status.
func (g *Guard) Resolve(ctx context.Context, sid string) (Status, error) {
	if sid == "" {
		return StatusUnauthenticated, nil
	}

	user, hasUser, err := g.reader.User(ctx, sid)
	if err != nil {
		return StatusUnknown, err
	}

	cred, hasCred, err := g.reader.Credential(ctx, sid)
	if err != nil {
		return StatusUnknown, err
	}

	if !hasCred || cred.Empty() {
		if !hasUser {
			return StatusUnauthenticated, nil
		}
		// The session was authenticated but the credential is gone.
		// Wait out a possible in-flight rotation before logging the
		// session out.
		g.sleep(g.debounce)
		cred, hasCred, err = g.reader.Credential(ctx, sid)
		if err != nil {
			return StatusUnknown, err
		}
		if !hasCred || cred.Empty() {
			g.log.Debug().Str("sid", sid).Msg("credential gone after debounce, session unauthenticated")
			return StatusUnauthenticated, nil
		}
	}

	if hasUser && user.FaceVerified {
		return StatusFull, nil
	}
	return StatusUnverified, nil
}
