package upstream

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/proctorix/examgate/internal/model"
	"github.com/proctorix/examgate/internal/token"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

// pipelineHarness wires a pipeline against an httptest upstream with a
// controllable refresh function.
type pipelineHarness struct {
	store    *token.Store
	coord    *token.Coordinator
	pipeline *Pipeline
	refreshN atomic.Int32
}

func newPipelineHarness(t *testing.T, upstreamURL string) *pipelineHarness {
	t.Helper()
	h := &pipelineHarness{store: token.NewStore(nil)}
	refresh := func(context.Context, string) (string, string, error) {
		h.refreshN.Add(1)
		return signedToken(t, time.Now().Add(time.Hour)), "", nil
	}
	h.coord = token.NewCoordinator(h.store, refresh, zerolog.Nop())
	h.pipeline = NewPipeline(upstreamURL, 5*time.Second, time.Minute, h.store, h.coord, zerolog.Nop())
	return h
}

func (h *pipelineHarness) seed(t *testing.T, exp time.Time) {
	t.Helper()
	err := h.store.Set(context.Background(), "sid-1", model.Credential{
		AccessToken:  signedToken(t, exp),
		RefreshToken: "r1",
		CSRFToken:    "csrf-1",
	})
	require.NoError(t, err)
}

func TestPipelineAttachesCredentials(t *testing.T) {
	var gotAuth, gotCSRF string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCSRF = r.Header.Get("X-CSRFToken")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	h := newPipelineHarness(t, srv.URL)
	h.seed(t, time.Now().Add(time.Hour))

	var out map[string]string
	require.NoError(t, h.pipeline.Do(context.Background(), "sid-1", http.MethodGet, "/ping/", nil, &out))

	assert.Contains(t, gotAuth, "Bearer ")
	assert.Equal(t, "csrf-1", gotCSRF)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, int32(0), h.refreshN.Load())
}

func TestPipelineProactiveRefreshNearExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	h := newPipelineHarness(t, srv.URL)
	// Expires in 10s, skew is 60s: must refresh before dispatch.
	h.seed(t, time.Now().Add(10*time.Second))

	require.NoError(t, h.pipeline.Do(context.Background(), "sid-1", http.MethodGet, "/list/", nil, nil))
	assert.Equal(t, int32(1), h.refreshN.Load())
}

func TestPipeline401RefreshReplayOnce(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		first := hits == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"value":42}`))
	}))
	defer srv.Close()

	h := newPipelineHarness(t, srv.URL)
	h.seed(t, time.Now().Add(time.Hour))

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, h.pipeline.Do(context.Background(), "sid-1", http.MethodGet, "/data/", nil, &out))

	assert.Equal(t, 42, out.Value)
	assert.Equal(t, 2, hits)
	assert.Equal(t, int32(1), h.refreshN.Load())
}

func TestPipelineSecond401Terminates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := newPipelineHarness(t, srv.URL)
	h.seed(t, time.Now().Add(time.Hour))

	err := h.pipeline.Do(context.Background(), "sid-1", http.MethodGet, "/data/", nil, nil)
	assert.ErrorIs(t, err, token.ErrSessionExpired)
	assert.Equal(t, int32(1), h.refreshN.Load())

	// The credential is gone: the session is over.
	_, ok := h.store.Get(context.Background(), "sid-1")
	assert.False(t, ok)
}

func TestPipelineErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/limited/":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/invalid/":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"answer shape mismatch"}`))
		case "/gone/":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	h := newPipelineHarness(t, srv.URL)
	h.seed(t, time.Now().Add(time.Hour))
	ctx := context.Background()

	err := h.pipeline.Do(ctx, "sid-1", http.MethodGet, "/limited/", nil, nil)
	assert.ErrorIs(t, err, ErrRateLimited)

	err = h.pipeline.Do(ctx, "sid-1", http.MethodPost, "/invalid/", map[string]string{"a": "b"}, nil)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	// The upstream detail passes through verbatim.
	assert.Equal(t, "answer shape mismatch", vErr.Detail)

	err = h.pipeline.Do(ctx, "sid-1", http.MethodGet, "/gone/", nil, nil)
	var sErr *StatusError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, http.StatusNotFound, sErr.StatusCode)
}

func TestPipelineTransportErrorIsTransient(t *testing.T) {
	h := newPipelineHarness(t, "http://127.0.0.1:1") // nothing listens here
	h.seed(t, time.Now().Add(time.Hour))

	err := h.pipeline.Do(context.Background(), "sid-1", http.MethodGet, "/data/", nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, errors.Is(err, token.ErrSessionExpired))
}
