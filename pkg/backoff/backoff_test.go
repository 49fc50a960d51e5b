package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_ExponentialProgression(t *testing.T) {
	// Jitter disabled for exact values
	calc := New(Config{
		Base:         2 * time.Second,
		Max:          120 * time.Second,
		JitterFactor: 0,
	})

	expected := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, calc.Delay(i), "error count %d", i)
	}
}

func TestDelay_CappedAtMax(t *testing.T) {
	calc := New(Config{
		Base:         2 * time.Second,
		Max:          120 * time.Second,
		JitterFactor: 0,
	})

	assert.Equal(t, 120*time.Second, calc.Delay(6))   // 128s uncapped
	assert.Equal(t, 120*time.Second, calc.Delay(50))  // far past cap
	assert.Equal(t, 120*time.Second, calc.Delay(500)) // overflow territory
}

func TestDelay_JitterBounds(t *testing.T) {
	calc := New(Config{
		Base:         2 * time.Second,
		Max:          120 * time.Second,
		JitterFactor: 0.3,
	})

	// Jitter is uniform in [0, 0.3*exp]; delay stays within [exp, 1.3*exp]
	for i := 0; i < 100; i++ {
		d := calc.Delay(2) // exp = 8s
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 10400*time.Millisecond)
	}
}

func TestDelay_NonDecreasing(t *testing.T) {
	calc := New(Config{
		Base:         2 * time.Second,
		Max:          120 * time.Second,
		JitterFactor: 0,
	})

	prev := time.Duration(0)
	for i := 0; i < 20; i++ {
		d := calc.Delay(i)
		assert.GreaterOrEqual(t, d, prev, "delay must be non-decreasing at count %d", i)
		prev = d
	}
}

func TestDelay_NegativeCountClamped(t *testing.T) {
	calc := New(Config{Base: time.Second, Max: time.Minute, JitterFactor: 0})
	assert.Equal(t, time.Second, calc.Delay(-3))
}

func TestNew_Defaults(t *testing.T) {
	calc := New(Config{})
	assert.Equal(t, 2*time.Second, calc.Base())
	assert.Equal(t, 2*time.Minute, calc.Max())
}
