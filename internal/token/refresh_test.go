package token

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proctorix/examgate/internal/model"
)

func TestCoordinatorFanIn(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Set(ctx, "sid-1", model.Credential{AccessToken: "old", RefreshToken: "r1"}))

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	refresh := func(context.Context, string) (string, string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "fresh", "", nil
	}
	c := NewCoordinator(s, refresh, zerolog.Nop())

	const n = 10
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)

	wg.Add(1)
	go func() {
		defer wg.Done()
		tokens[0], errs[0] = c.Refresh(ctx, "sid-1")
	}()
	<-started

	// Everyone arriving while the first refresh is in flight joins it.
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = c.Refresh(ctx, "sid-1")
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh", tokens[i])
	}

	cred, ok := s.Get(ctx, "sid-1")
	require.True(t, ok)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.Equal(t, "r1", cred.RefreshToken)
}

func TestCoordinatorFailureTerminatesAllWaiters(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Set(ctx, "sid-1", model.Credential{AccessToken: "old", RefreshToken: "r1"}))

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	refresh := func(context.Context, string) (string, string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "", "", errors.New("upstream says no")
	}
	c := NewCoordinator(s, refresh, zerolog.Nop())

	var terminations atomic.Int32
	c.OnTerminate(func(string) { terminations.Add(1) })

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)

	wg.Add(1)
	go func() { defer wg.Done(); _, errs[0] = c.Refresh(ctx, "sid-1") }()
	<-started
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) { defer wg.Done(); _, errs[i] = c.Refresh(ctx, "sid-1") }(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// One upstream attempt; every caller sees the terminal error.
	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		assert.ErrorIs(t, errs[i], ErrSessionExpired)
	}

	// The credential is gone and the termination hook fired.
	_, ok := s.Get(ctx, "sid-1")
	assert.False(t, ok)
	assert.Equal(t, int32(1), terminations.Load())
}

func TestCoordinatorMissingRefreshTokenTerminatesWithoutNetworkCall(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Set(ctx, "sid-1", model.Credential{AccessToken: "old"}))

	var calls atomic.Int32
	refresh := func(context.Context, string) (string, string, error) {
		calls.Add(1)
		return "fresh", "", nil
	}
	c := NewCoordinator(s, refresh, zerolog.Nop())

	_, err := c.Refresh(ctx, "sid-1")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(0), calls.Load())

	_, ok := s.Get(ctx, "sid-1")
	assert.False(t, ok)
}

func TestCoordinatorSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Set(ctx, "sid-1", model.Credential{AccessToken: "a", RefreshToken: "r1"}))
	require.NoError(t, s.Set(ctx, "sid-2", model.Credential{AccessToken: "a", RefreshToken: "r2"}))

	var calls atomic.Int32
	refresh := func(_ context.Context, rt string) (string, string, error) {
		calls.Add(1)
		return "fresh-" + rt, "", nil
	}
	c := NewCoordinator(s, refresh, zerolog.Nop())

	tok1, err := c.Refresh(ctx, "sid-1")
	require.NoError(t, err)
	tok2, err := c.Refresh(ctx, "sid-2")
	require.NoError(t, err)

	assert.Equal(t, "fresh-r1", tok1)
	assert.Equal(t, "fresh-r2", tok2)
	assert.Equal(t, int32(2), calls.Load())
}
