// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates the action is temporarily blocked by the
	// client-side rate limiter.
	ErrRateLimited = errors.New("rate limited")

	// ErrDepthExceeded indicates a reply would exceed the maximum
	// comment nesting level.
	ErrDepthExceeded = errors.New("nesting level exceeded")
)
