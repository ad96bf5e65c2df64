package token

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proctorix/examgate/internal/model"
)

type memPersistence struct {
	mu    sync.Mutex
	creds map[string]model.Credential
	saves int
}

func newMemPersistence() *memPersistence {
	return &memPersistence{creds: make(map[string]model.Credential)}
}

func (p *memPersistence) SaveCredential(_ context.Context, sid string, cred model.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds[sid] = cred
	p.saves++
	return nil
}

func (p *memPersistence) LoadCredential(_ context.Context, sid string) (model.Credential, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.creds[sid]
	return c, ok, nil
}

func (p *memPersistence) DeleteCredential(_ context.Context, sid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.creds, sid)
	return nil
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
		"sub": "1",
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestStoreRotateKeepsLastServerRefreshToken(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	require.NoError(t, s.Set(ctx, "sid-1", model.Credential{AccessToken: "a1", RefreshToken: "r1"}))

	// Rotation without a new refresh token keeps the old one.
	require.NoError(t, s.Rotate(ctx, "sid-1", "a2", ""))
	cred, ok := s.Get(ctx, "sid-1")
	require.True(t, ok)
	assert.Equal(t, "a2", cred.AccessToken)
	assert.Equal(t, "r1", cred.RefreshToken)

	// A rotated refresh token replaces it.
	require.NoError(t, s.Rotate(ctx, "sid-1", "a3", "r2"))
	cred, _ = s.Get(ctx, "sid-1")
	assert.Equal(t, "r2", cred.RefreshToken)
}

func TestStoreSelfHealsFromPersistence(t *testing.T) {
	ctx := context.Background()
	persist := newMemPersistence()
	persist.creds["sid-1"] = model.Credential{AccessToken: "a1", RefreshToken: "r1"}

	// A fresh store simulates a gateway restart: the cache is cold but
	// the session survives.
	s := NewStore(persist)
	cred, ok := s.Get(ctx, "sid-1")
	require.True(t, ok)
	assert.Equal(t, "a1", cred.AccessToken)

	// Second read is served from memory.
	_, ok = s.Get(ctx, "sid-1")
	assert.True(t, ok)
}

func TestStoreClearRemovesEverywhere(t *testing.T) {
	ctx := context.Background()
	persist := newMemPersistence()
	s := NewStore(persist)

	require.NoError(t, s.Set(ctx, "sid-1", model.Credential{AccessToken: "a1", RefreshToken: "r1"}))
	s.Clear(ctx, "sid-1")

	_, ok := s.Get(ctx, "sid-1")
	assert.False(t, ok)
	_, found, _ := persist.LoadCredential(ctx, "sid-1")
	assert.False(t, found)
}

func TestStoreNearExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// No credential at all counts as expired.
	assert.True(t, s.NearExpiry(ctx, "missing", time.Minute))

	// Expires in 30s with a 60s skew: near expiry.
	require.NoError(t, s.Set(ctx, "soon", model.Credential{AccessToken: signedToken(t, now.Add(30*time.Second))}))
	assert.True(t, s.NearExpiry(ctx, "soon", time.Minute))

	// Expires in 10m: fine.
	require.NoError(t, s.Set(ctx, "later", model.Credential{AccessToken: signedToken(t, now.Add(10*time.Minute))}))
	assert.False(t, s.NearExpiry(ctx, "later", time.Minute))

	// Garbage token counts as expired.
	require.NoError(t, s.Set(ctx, "junk", model.Credential{AccessToken: "not-a-jwt"}))
	assert.True(t, s.NearExpiry(ctx, "junk", time.Minute))
}
