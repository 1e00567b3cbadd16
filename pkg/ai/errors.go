// Package ai provides the error taxonomy and retry helpers shared by the
// wake-word, speech-to-text, text-to-speech and language-model engines.
package ai

import (
	"errors"
	"time"
)

// Common error types used across engines
var (
	// ErrRecoverable indicates a transient request failure that may succeed if retried.
	// Examples: network timeout, rate limiting, a stream that failed to open.
	ErrRecoverable = errors.New("recoverable engine error")

	// ErrFatal indicates a permanent failure that will not succeed if retried.
	// Examples: invalid API key, unsupported format, malformed request.
	ErrFatal = errors.New("fatal engine error")

	// ErrEmptyTranscription is returned when recognition produced no usable text.
	// The conversation treats it as a false trigger and quietly resumes listening.
	ErrEmptyTranscription = errors.New("empty transcription")

	// ErrDevice marks microphone or playback device failures.
	ErrDevice = errors.New("audio device failure")
)

// RetryConfig configures retry behavior for recoverable errors
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts
	InitialDelay  time.Duration // Initial delay before first retry
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Exponential backoff multiplier
	JitterPercent float32       // Random jitter percentage (0.0-1.0)
}

// DefaultRetryConfig provides sensible defaults for engine retries
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
	JitterPercent: 0.1,
}

// OnceRetryConfig retries exactly one time with no delay. Voice replies favour
// latency over persistence, so this is what the reply path uses.
var OnceRetryConfig = RetryConfig{
	MaxRetries:    1,
	BackoffFactor: 1.0,
}

// IsRecoverable checks if an error is recoverable and should be retried
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal checks if an error is fatal and should not be retried
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// RetryableError wraps an underlying error with retry classification
type RetryableError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *RetryableError) Error() string {
	if e.Message != "" {
		if e.Underlying != nil {
			return e.Message + ": " + e.Underlying.Error()
		}
		return e.Message
	}
	return e.Underlying.Error()
}

// Unwrap exposes both the classification sentinel and the underlying cause,
// so errors.Is works against either.
func (e *RetryableError) Unwrap() []error {
	class := ErrFatal
	if e.Retryable {
		class = ErrRecoverable
	}
	if e.Underlying == nil {
		return []error{class}
	}
	return []error{class, e.Underlying}
}

// NewRecoverableError creates a recoverable error with context
func NewRecoverableError(underlying error, message string) error {
	return &RetryableError{
		Underlying: underlying,
		Retryable:  true,
		Message:    message,
	}
}

// NewFatalError creates a fatal error with context
func NewFatalError(underlying error, message string) error {
	return &RetryableError{
		Underlying: underlying,
		Retryable:  false,
		Message:    message,
	}
}

// NewDeviceError wraps a microphone or speaker failure. Device errors are
// fatal to the current session segment.
func NewDeviceError(underlying error, message string) error {
	return NewFatalError(errors.Join(ErrDevice, underlying), message)
}
