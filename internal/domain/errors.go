package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the platform failure taxonomy. Match them with
// errors.Is; adapters return *PlatformError values that unwrap to one of them.
var (
	// ErrAuth means the credentials were rejected. It aborts the invocation.
	ErrAuth = errors.New("authentication failed")

	// ErrRateLimited means the platform throttled the call. Writes are
	// enqueued for a later flush; reads are skipped for this run.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound means the handle or post does not resolve on the platform.
	ErrNotFound = errors.New("not found")

	// ErrPlatform covers every other platform-side failure.
	ErrPlatform = errors.New("platform error")
)

// ErrorKind is the category of a PlatformError.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRateLimited ErrorKind = "rate_limited"
	KindNotFound    ErrorKind = "not_found"
	KindPlatform    ErrorKind = "platform"
)

// PlatformError is the error type returned by adapters.
type PlatformError struct {
	Kind     ErrorKind
	Platform Platform

	// Op names the adapter operation, e.g. "like" or "fetch recent".
	Op string

	// Status is the HTTP status, when there was a response.
	Status int

	// RetryAfter is the platform's hint for when to try again (rate limits).
	RetryAfter time.Duration

	Err error
}

// NewPlatformError builds a PlatformError.
func NewPlatformError(kind ErrorKind, p Platform, op string, err error) *PlatformError {
	return &PlatformError{Kind: kind, Platform: p, Op: op, Err: err}
}

func (e *PlatformError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Platform, e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *PlatformError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrPlatform:
		return e.Kind == KindPlatform
	}
	return false
}

// RetryAfter returns the retry hint carried by a rate-limit error, or zero.
func RetryAfter(err error) time.Duration {
	var pe *PlatformError
	if errors.As(err, &pe) && pe.Kind == KindRateLimited {
		return pe.RetryAfter
	}
	return 0
}
