// Package store routes read/write operations against the backing
// key-path JSON store, either over the direct REST surface or through
// the stateless HTTP proxy relay.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client is the uniform verb surface both transports implement.
// Paths are store key paths like "articles" or "comments/<key>".
type Client interface {
	// Get reads the value at path.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	// Set overwrites the value at path.
	Set(ctx context.Context, path string, v any) error
	// Push appends v under a store-generated key and returns that key.
	Push(ctx context.Context, path string, v any) (string, error)
	// Update applies a partial update to the value at path.
	Update(ctx context.Context, path string, partial any) error
	// Delete removes the value at path.
	Delete(ctx context.Context, path string) error
	// Subscribe delivers full snapshots of path on every change until
	// the subscription is closed or ctx is cancelled.
	Subscribe(ctx context.Context, path string) (*Subscription, error)
}

// TransportError is the single error kind surfaced for network
// failures, timeouts, and non-success statuses on either path.
type TransportError struct {
	Op     string // get, set, push, update, delete, subscribe
	Path   string
	Status int // HTTP status when a response arrived, else 0
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("store %s %q: status %d", e.Op, e.Path, e.Status)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
