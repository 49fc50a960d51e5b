package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShadeREPO/elizaOS-sub000/errors"
	"github.com/ShadeREPO/elizaOS-sub000/pkg/backoff"
)

// fakeClock lets tests advance breaker time deterministically
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestBreaker(t *testing.T, cfg Config) (*Breaker, *fakeClock) {
	t.Helper()
	cfg.Backoff.JitterFactor = 0
	b, err := New(cfg)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	b.now = clock.now
	return b, clock
}

func defaultTestConfig() Config {
	return Config{
		ErrorThreshold: 5,
		CoolDown:       time.Minute,
		MaxInFlight:    3,
		Backoff: backoff.Config{
			Base: 2 * time.Second,
			Max:  120 * time.Second,
		},
	}
}

func TestOpensExactlyAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, defaultTestConfig())

	for i := 0; i < 4; i++ {
		b.RecordError(500)
		assert.False(t, b.IsOpen(), "circuit must stay closed before threshold (error %d)", i+1)
	}

	b.RecordError(500)
	assert.True(t, b.IsOpen(), "circuit opens exactly at the 5th error")
	assert.Equal(t, StateOpen, b.State())
	assert.True(t, b.ShouldSkip())
}

func TestRateLimitBackoffProgression(t *testing.T) {
	b, clock := newTestBreaker(t, defaultTestConfig())

	// Consecutive 429s: backoff windows of 2s, 4s, 8s, 16s, 32s
	expected := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}
	prev := time.Duration(0)
	for i, want := range expected {
		b.RecordError(429)
		remaining := b.BackoffRemaining()
		assert.Equal(t, want, remaining, "429 #%d", i+1)
		assert.GreaterOrEqual(t, remaining, prev, "backoff must be non-decreasing")
		prev = remaining
		if i < len(expected)-1 {
			// Advance past the window so the next measurement is isolated
			clock.advance(want)
		}
	}

	// Threshold reached at the 5th error: skip until cool-down elapses
	assert.True(t, b.IsOpen())
	assert.True(t, b.ShouldSkip())
	clock.advance(59 * time.Second)
	assert.True(t, b.ShouldSkip(), "still inside cool-down")
	clock.advance(2 * time.Second)
	assert.False(t, b.ShouldSkip(), "half-open allows the next attempt")
}

func TestNon429DoesNotArmBackoff(t *testing.T) {
	b, _ := newTestBreaker(t, defaultTestConfig())

	b.RecordError(500)
	b.RecordError(503)

	assert.Equal(t, 2, b.ConsecutiveErrors())
	assert.Equal(t, time.Duration(0), b.BackoffRemaining())
	assert.False(t, b.ShouldSkip())
}

func TestCoolDownDoesNotCloseCircuit(t *testing.T) {
	b, clock := newTestBreaker(t, defaultTestConfig())

	for i := 0; i < 5; i++ {
		b.RecordError(500)
	}
	require.True(t, b.IsOpen())

	clock.advance(2 * time.Minute)

	// Cool-down elapsed: attempts allowed but the circuit is still open
	assert.False(t, b.ShouldSkip())
	assert.True(t, b.IsOpen(), "cool-down elapsing must not close the circuit")
	assert.Equal(t, StateHalfOpen, b.State())

	// Only a success closes it
	b.RecordSuccess()
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.ConsecutiveErrors())
}

func TestHalfOpenFailureRestartsCoolDown(t *testing.T) {
	b, clock := newTestBreaker(t, defaultTestConfig())

	for i := 0; i < 5; i++ {
		b.RecordError(500)
	}
	clock.advance(2 * time.Minute)
	require.Equal(t, StateHalfOpen, b.State())

	// The probe fails: back to open with a fresh cool-down window
	b.RecordError(500)
	assert.Equal(t, StateOpen, b.State())
	assert.True(t, b.ShouldSkip())

	clock.advance(59 * time.Second)
	assert.True(t, b.ShouldSkip())
	clock.advance(2 * time.Second)
	assert.False(t, b.ShouldSkip())
}

func TestSuccessClearsBackoff(t *testing.T) {
	b, _ := newTestBreaker(t, defaultTestConfig())

	b.RecordError(429)
	require.Greater(t, b.BackoffRemaining(), time.Duration(0))

	b.RecordSuccess()
	assert.Equal(t, time.Duration(0), b.BackoffRemaining())
	assert.False(t, b.ShouldSkip())
}

func TestInFlightCeiling(t *testing.T) {
	b, _ := newTestBreaker(t, defaultTestConfig())

	require.NoError(t, b.Acquire())
	require.NoError(t, b.Acquire())
	require.NoError(t, b.Acquire())

	assert.True(t, b.ShouldSkip(), "ceiling reached")
	err := b.Acquire()
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	b.Release()
	assert.False(t, b.ShouldSkip())
	assert.NoError(t, b.Acquire())
	assert.Equal(t, 3, b.InFlight())
}

func TestAcquireSkipReasons(t *testing.T) {
	b, clock := newTestBreaker(t, defaultTestConfig())

	b.RecordError(429)
	err := b.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBackoffActive)

	clock.advance(time.Minute)
	for i := 0; i < 5; i++ {
		b.RecordError(500)
	}
	err = b.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
}

func TestSnapshot(t *testing.T) {
	b, _ := newTestBreaker(t, defaultTestConfig())

	b.RecordError(429)
	require.NoError(t, b.Acquire())

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 1, snap.ConsecutiveErrors)
	assert.Equal(t, 2*time.Second, snap.BackoffRemaining)
	assert.Equal(t, 1, snap.InFlight)
	assert.False(t, snap.LastErrorAt.IsZero())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.ErrorThreshold = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.CoolDown = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxInFlight = -1
	assert.Error(t, bad.Validate())
}
