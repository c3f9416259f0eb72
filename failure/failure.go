package failure

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure so callers can decide between retrying,
// re-queueing and giving up.
type Kind string

const (
	KindMissingInput Kind = "missing_input"
	KindProvider     Kind = "provider_error"
	KindRateLimited  Kind = "rate_limited"
	KindEncoding     Kind = "encoding_error"
	KindEffect       Kind = "effect_error"
	KindCancelled    Kind = "cancelled"
)

// Error is the structured error carried through generation, rendering and
// status reporting.
type Error struct {
	Kind       Kind
	Message    string
	Path       string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MissingInput reports an asset path that does not exist on storage.
func MissingInput(path string) *Error {
	return &Error{Kind: KindMissingInput, Message: "input file not found", Path: path}
}

// Provider wraps a text-to-speech or text-to-image failure.
func Provider(provider string, err error) *Error {
	return &Error{Kind: KindProvider, Message: provider + " request failed", Err: err}
}

// RateLimited wraps a provider throttling response. retryAfter is the hint
// returned by the provider, zero when none was given.
func RateLimited(provider string, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindRateLimited, Message: provider + " rate limit reached", RetryAfter: retryAfter, Err: err}
}

// Encoding wraps an encoder failure. message usually holds the tail of the
// encoder's diagnostic output.
func Encoding(message string, err error) *Error {
	return &Error{Kind: KindEncoding, Message: message, Err: err}
}

func Effect(name string, err error) *Error {
	return &Error{Kind: KindEffect, Message: fmt.Sprintf("effect %q failed", name), Err: err}
}

func Cancelled(err error) *Error {
	return &Error{Kind: KindCancelled, Message: "task cancelled", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindProvider for unclassified errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindProvider
}

// IsRetryable reports whether a bounded retry of the same unit may succeed.
// Rate limits are re-queued instead of retried in place.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindProvider
}

// RetryAfterOf returns the provider hint attached to a rate-limit error.
func RetryAfterOf(err error) (time.Duration, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == KindRateLimited {
		return fe.RetryAfter, true
	}
	return 0, false
}
