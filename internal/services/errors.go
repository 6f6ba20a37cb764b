package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a pipeline failure for retry policy and caller reporting.
type Kind string

const (
	KindSourceUnavailable    Kind = "source_unavailable"
	KindUnsupportedFormat    Kind = "unsupported_format"
	KindModelUnavailable     Kind = "model_unavailable"
	KindResourceExhausted    Kind = "resource_exhausted"
	KindRecognitionFailure   Kind = "recognition_failure"
	KindAllTranslationFailed Kind = "all_translation_engines_failed"
	KindVoiceUnavailable     Kind = "voice_unavailable"
	KindMuxFailure           Kind = "mux_failure"
	KindCancelled            Kind = "cancelled"
	KindTimeout              Kind = "timeout"
	KindInternal             Kind = "internal"
)

var retryableKinds = map[Kind]struct{}{
	KindResourceExhausted: {},
	KindTimeout:           {},
	KindInternal:          {},
}

// Retryable reports whether a failure kind is worth another stage attempt.
func Retryable(kind Kind) bool {
	_, ok := retryableKinds[kind]
	return ok
}

// Error is a classified pipeline failure carrying the stage it broke in.
type Error struct {
	Kind    Kind
	Stage   string
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if stage := strings.TrimSpace(e.Stage); stage != "" {
		parts = append(parts, stage)
	}
	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, op)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	detail := strings.Join(parts, ": ")
	if detail == "" {
		detail = "pipeline failure"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, detail)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a classified error without an underlying cause.
func NewError(kind Kind, stage, op, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Op: op, Message: message}
}

// Wrap attaches classification and stage context to an underlying error.
func Wrap(kind Kind, stage, op string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Op: op, Cause: err}
}

// Details is the flattened view of a classified error used for persistence
// and structured logging.
type Details struct {
	Kind    Kind
	Stage   string
	Op      string
	Message string
	Cause   error
}

// Classify recovers structured details from any error. Unclassified errors
// map to Internal except for context cancellation and deadline expiry, and
// network-level failures, which the retry policy cares about.
func Classify(err error) Details {
	if err == nil {
		return Details{Kind: KindInternal, Message: "unknown failure"}
	}

	var classified *Error
	if errors.As(err, &classified) {
		message := strings.TrimSpace(classified.Message)
		if message == "" && classified.Cause != nil {
			message = classified.Cause.Error()
		}
		if message == "" {
			message = classified.Error()
		}
		return Details{
			Kind:    classified.Kind,
			Stage:   classified.Stage,
			Op:      classified.Op,
			Message: message,
			Cause:   classified.Cause,
		}
	}

	kind := KindInternal
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case isNetworkError(err):
		kind = KindTimeout
	}
	return Details{Kind: kind, Message: err.Error(), Cause: err}
}

// RetryableError reports whether the classified kind of err permits a retry.
func RetryableError(err error) bool {
	return Retryable(Classify(err).Kind)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
