package attempt

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountdownFiresExactlyOnceUnderHammering(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	cd := NewCountdown(clock, func() { fired.Add(1) })
	cd.Start(10 * time.Minute)

	// Hammer Stop, restarts and expiry concurrently around the deadline.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		clock.Advance(10 * time.Minute)
	}()
	go func() {
		defer wg.Done()
		cd.Start(10 * time.Minute)
	}()
	go func() {
		defer wg.Done()
		_ = cd.Remaining()
	}()
	wg.Wait()

	assert.LessOrEqual(t, fired.Load(), int32(1))

	// A second advance can never fire it again.
	clock.Advance(20 * time.Minute)
	assert.LessOrEqual(t, fired.Load(), int32(1))
}

func TestCountdownStopPreventsExpiry(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	cd := NewCountdown(clock, func() { fired.Add(1) })

	cd.Start(time.Minute)
	cd.Stop()
	clock.Advance(2 * time.Minute)

	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, time.Duration(0), cd.Remaining())
}

func TestCountdownRemaining(t *testing.T) {
	clock := newFakeClock()
	cd := NewCountdown(clock, func() {})

	assert.Equal(t, time.Duration(0), cd.Remaining())

	cd.Start(time.Minute)
	clock.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, cd.Remaining())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, time.Duration(0), cd.Remaining())
}

func TestCountdownStartIsOneShot(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	cd := NewCountdown(clock, func() { fired.Add(1) })

	cd.Start(time.Minute)
	cd.Start(time.Hour) // ignored

	clock.Advance(time.Minute)
	assert.Equal(t, int32(1), fired.Load())
}
