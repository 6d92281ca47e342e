package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. Every error surfaced by a
// pipeline component carries exactly one kind, which the orchestrator maps
// into a FailureReport.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindFetch      ErrorKind = "fetch"
	KindSizeLimit  ErrorKind = "size_limit"
	KindValidation ErrorKind = "validation"
	KindModel      ErrorKind = "model"
	KindTimeout    ErrorKind = "timeout"
	KindPublish    ErrorKind = "publish"
)

// PipelineError is the single error type used across pipeline components.
// Message must stay safe to echo back to the pull request: no credentials,
// no diff content. The wrapped error is for logs only.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NewAuthError(err error, format string, args ...any) *PipelineError {
	return newError(KindAuth, err, format, args...)
}

func NewFetchError(err error, format string, args ...any) *PipelineError {
	return newError(KindFetch, err, format, args...)
}

func NewSizeLimitError(format string, args ...any) *PipelineError {
	return newError(KindSizeLimit, nil, format, args...)
}

func NewValidationError(format string, args ...any) *PipelineError {
	return newError(KindValidation, nil, format, args...)
}

func NewModelError(err error, format string, args ...any) *PipelineError {
	return newError(KindModel, err, format, args...)
}

func NewTimeoutError(err error, format string, args ...any) *PipelineError {
	return newError(KindTimeout, err, format, args...)
}

func NewPublishError(err error, format string, args ...any) *PipelineError {
	return newError(KindPublish, err, format, args...)
}

// KindOf returns the classification of err, or an empty kind for errors
// that did not originate in a pipeline component.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err is a pipeline error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// SafeMessage returns a message that can be posted back to the pull request.
// For non-pipeline errors it returns a generic placeholder so that internal
// details never leak into a comment.
func SafeMessage(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "an unexpected internal error occurred"
}

// Stage names a state of the review pipeline. A FailureReport records the
// state the run was trying to reach when it failed.
type Stage string

const (
	StageReceived      Stage = "received"
	StageAuthenticated Stage = "authenticated"
	StageDiffFetched   Stage = "diff_fetched"
	StagePromptBuilt   Stage = "prompt_built"
	StageReviewed      Stage = "reviewed"
	StagePublished     Stage = "published"
)

// FailureReport is the terminal record of a failed pipeline run.
type FailureReport struct {
	Stage   Stage
	Kind    ErrorKind
	Message string
}

// NewFailureReport maps a component error into a report suitable for the
// fallback comment. The message is always safe to publish.
func NewFailureReport(stage Stage, err error) FailureReport {
	kind := KindOf(err)
	if kind == "" {
		kind = "internal"
	}
	return FailureReport{
		Stage:   stage,
		Kind:    kind,
		Message: SafeMessage(err),
	}
}

func (r FailureReport) String() string {
	return fmt.Sprintf("stage=%s kind=%s: %s", r.Stage, r.Kind, r.Message)
}
