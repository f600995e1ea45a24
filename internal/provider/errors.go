package provider

import (
	"errors"
	"fmt"
)

const (
	// KindRateLimited: the provider throttled the call. Retry later with
	// backoff.
	KindRateLimited Kind = "rate_limited"
	// KindUnauthorized: credentials are invalid. Terminal until the user
	// re-authenticates.
	KindUnauthorized Kind = "unauthorized"
	// KindTransient: network failure or timeout. Retryable with backoff.
	KindTransient Kind = "transient"
	// KindMalformed: the response could not be parsed. Not retryable.
	KindMalformed Kind = "malformed"
)

// Kind categorizes a provider failure.
type Kind string

// Error is a categorized provider failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the call with backoff.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err is a retryable provider failure.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable()
}
