package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"auth", NewAuthError(errors.New("boom"), "token exchange rejected"), KindAuth},
		{"fetch", NewFetchError(errors.New("boom"), "listing files failed"), KindFetch},
		{"size limit", NewSizeLimitError("diff too large (%d bytes)", 60000), KindSizeLimit},
		{"validation", NewValidationError("no code changes"), KindValidation},
		{"model", NewModelError(errors.New("boom"), "model rejected request"), KindModel},
		{"timeout", NewTimeoutError(errors.New("boom"), "model timed out"), KindTimeout},
		{"publish", NewPublishError(errors.New("boom"), "review rejected"), KindPublish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.True(t, IsKind(tt.err, tt.kind))
		})
	}
}

func TestKindOfWrappedError(t *testing.T) {
	inner := NewSizeLimitError("diff too large")
	wrapped := fmt.Errorf("run failed: %w", inner)

	assert.Equal(t, KindSizeLimit, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindSizeLimit))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.False(t, IsKind(errors.New("plain"), KindModel))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestSafeMessage(t *testing.T) {
	t.Run("pipeline error exposes its message", func(t *testing.T) {
		err := NewSizeLimitError("pull request diff is too large (%d bytes)", 70000)
		assert.Equal(t, "pull request diff is too large (70000 bytes)", SafeMessage(err))
	})

	t.Run("wrapped cause is not exposed", func(t *testing.T) {
		cause := errors.New("x-api-key sk-secret rejected")
		err := NewAuthError(cause, "authentication with the code host failed")
		assert.Equal(t, "authentication with the code host failed", SafeMessage(err))
		assert.NotContains(t, SafeMessage(err), "sk-secret")
	})

	t.Run("foreign error degrades to a placeholder", func(t *testing.T) {
		assert.Equal(t, "an unexpected internal error occurred", SafeMessage(errors.New("pq: connection refused")))
	})
}

func TestPipelineErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewFetchError(cause, "fetch failed")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "fetch: fetch failed")
}

func TestNewFailureReport(t *testing.T) {
	t.Run("pipeline error", func(t *testing.T) {
		report := NewFailureReport(StageDiffFetched, NewSizeLimitError("diff too large"))

		assert.Equal(t, StageDiffFetched, report.Stage)
		assert.Equal(t, KindSizeLimit, report.Kind)
		assert.Equal(t, "diff too large", report.Message)
	})

	t.Run("foreign error", func(t *testing.T) {
		report := NewFailureReport(StageReviewed, errors.New("nil pointer"))

		assert.Equal(t, ErrorKind("internal"), report.Kind)
		assert.Equal(t, "an unexpected internal error occurred", report.Message)
	})
}
