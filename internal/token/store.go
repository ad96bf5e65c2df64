package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/proctorix/examgate/internal/model"
)

// Persistence mirrors credentials into a durable per-browser-session store so
// a gateway restart behaves like a page reload rather than a logout.
type Persistence interface {
	SaveCredential(ctx context.Context, sid string, cred model.Credential) error
	LoadCredential(ctx context.Context, sid string) (model.Credential, bool, error)
	DeleteCredential(ctx context.Context, sid string) error
}

// Store is the process-wide holder of per-session credentials. It is the
// single source of truth for "is this session currently authenticated";
// nothing else may mutate credential state directly.
type Store struct {
	mu      sync.RWMutex
	creds   map[string]model.Credential
	persist Persistence
	now     func() time.Time
}

// NewStore creates a Store backed by the given persistence layer.
// persist may be nil (tests, single-process dev).
func NewStore(persist Persistence) *Store {
	return &Store{
		creds:   make(map[string]model.Credential),
		persist: persist,
		now:     time.Now,
	}
}

// Get returns the credential for a session. On a warm-cache miss it falls
// back to the persistence layer and self-heals the in-memory map.
func (s *Store) Get(ctx context.Context, sid string) (model.Credential, bool) {
	s.mu.RLock()
	cred, ok := s.creds[sid]
	s.mu.RUnlock()
	if ok {
		return cred, true
	}

	if s.persist == nil {
		return model.Credential{}, false
	}

	cred, found, err := s.persist.LoadCredential(ctx, sid)
	if err != nil || !found {
		return model.Credential{}, false
	}

	s.mu.Lock()
	s.creds[sid] = cred
	s.mu.Unlock()
	return cred, true
}

// Set installs a full credential for a session (login).
func (s *Store) Set(ctx context.Context, sid string, cred model.Credential) error {
	s.mu.Lock()
	s.creds[sid] = cred
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.SaveCredential(ctx, sid, cred); err != nil {
			return fmt.Errorf("persist credential: %w", err)
		}
	}
	return nil
}

// Rotate installs a refreshed access token and, when the server rotated it,
// the new refresh token. The client always keeps whatever refresh token the
// server most recently returned.
func (s *Store) Rotate(ctx context.Context, sid, accessToken, refreshToken string) error {
	s.mu.Lock()
	cred := s.creds[sid]
	cred.AccessToken = accessToken
	if refreshToken != "" {
		cred.RefreshToken = refreshToken
	}
	s.creds[sid] = cred
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.SaveCredential(ctx, sid, cred); err != nil {
			return fmt.Errorf("persist credential: %w", err)
		}
	}
	return nil
}

// Clear destroys all credential state for a session (logout, refresh failure).
func (s *Store) Clear(ctx context.Context, sid string) {
	s.mu.Lock()
	delete(s.creds, sid)
	s.mu.Unlock()

	if s.persist != nil {
		_ = s.persist.DeleteCredential(ctx, sid)
	}
}

// AccessToken returns the current access token, or "" if none.
func (s *Store) AccessToken(ctx context.Context, sid string) string {
	cred, ok := s.Get(ctx, sid)
	if !ok {
		return ""
	}
	return cred.AccessToken
}

// NearExpiry reports whether the session's access token expires within skew.
// A missing or unparseable token counts as expired; a token without an exp
// claim never expires. The signature is deliberately not verified — the
// gateway is a client of the upstream issuer, not a validator.
func (s *Store) NearExpiry(ctx context.Context, sid string, skew time.Duration) bool {
	cred, ok := s.Get(ctx, sid)
	if !ok || cred.AccessToken == "" {
		return true
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(cred.AccessToken, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return s.now().Add(skew).After(exp.Time)
}
