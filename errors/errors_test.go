package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"rate limited", ErrRateLimited, ErrorTransient},
		{"circuit open", ErrCircuitOpen, ErrorTransient},
		{"backoff active", ErrBackoffActive, ErrorTransient},
		{"request timeout", ErrRequestTimeout, ErrorTransient},
		{"malformed response", ErrMalformedResponse, ErrorInvalid},
		{"invalid config", ErrInvalidConfig, ErrorInvalid},
		{"missing config", ErrMissingConfig, ErrorFatal},
		{"client closed", ErrClientClosed, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_WrappedSentinel(t *testing.T) {
	err := fmt.Errorf("fetch cycle: %w", ErrRateLimited)
	assert.True(t, IsTransient(err))
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, ErrorTransient, Classify(err))
}

func TestClassify_UnknownDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("something odd")))
}

func TestClassify_ContextDeadline(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
}

func TestWrapTransient(t *testing.T) {
	base := stderrors.New("connection refused")
	err := WrapTransient(base, "poller", "fetchCycle", "memories request")

	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.True(t, stderrors.Is(err, base))
	assert.Contains(t, err.Error(), "poller.fetchCycle: memories request failed")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "poller", ce.Component)
	assert.Equal(t, "fetchCycle", ce.Operation)
}

func TestWrapInvalid_OverridesTransientDefault(t *testing.T) {
	err := WrapInvalid(stderrors.New("unexpected token"), "agentapi", "decode", "response body")
	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))
	assert.Equal(t, ErrorInvalid, Classify(err))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}
