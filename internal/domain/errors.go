package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrEmptyResponse = errors.New("empty response")
	ErrUpstream      = errors.New("upstream error")
	ErrLockHeld      = errors.New("lock already held")
)

// GenerationError is returned by the LLM client when text generation fails.
// Reason is safe to show to API callers.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string { return e.Reason }

func (e *GenerationError) Unwrap() error { return e.Err }
