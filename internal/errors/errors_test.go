package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      Config("minPods %d exceeds maxPods %d", 5, 2),
			expected: "ConfigError: minPods 5 exceeds maxPods 2",
		},
		{
			name:     "message with cause",
			err:      Unavailable("get queue attributes", io.ErrUnexpectedEOF),
			expected: "BackendUnavailable: get queue attributes: unexpected EOF",
		},
		{
			name:     "empty message falls back to kind",
			err:      &Error{Kind: KindAPI},
			expected: "ApiError: ApiError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_IsSentinel(t *testing.T) {
	wrapped := fmt.Errorf("tick failed: %w", NotFound("deployment worker", nil))

	assert.True(t, Is(wrapped, ErrNotFound))
	assert.False(t, Is(wrapped, ErrConfig))
	assert.False(t, Is(wrapped, ErrAPI))
}

func TestError_Unwrap(t *testing.T) {
	err := API("patch deployment", io.EOF)
	assert.ErrorIs(t, err, io.EOF)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAPI, KindOf(fmt.Errorf("outer: %w", API("x", nil))))
	assert.Equal(t, KindUnknown, KindOf(io.EOF))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"config", Config("bad"), true},
		{"not found", NotFound("queue", nil), true},
		{"unavailable", Unavailable("queue", io.EOF), false},
		{"api", API("patch", nil), false},
		{"unclassified", io.EOF, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "ConfigError", KindConfig.String())
	assert.Equal(t, "BackendUnavailable", KindBackendUnavailable.String())
	assert.Equal(t, "NotFound", KindNotFound.String())
	assert.Equal(t, "ApiError", KindAPI.String())
	assert.Equal(t, "Unknown", Kind(42).String())
}
