package store

import (
	"context"
	"encoding/json"
	"sync"
)

// Subscription is a cancellable handle over a long-lived read. Every
// delivery is a full snapshot of the subscribed path, never a delta;
// consumers replace their state wholesale on each one.
type Subscription struct {
	ch     chan json.RawMessage
	cancel context.CancelFunc
	once   sync.Once
}

func newSubscription(cancel context.CancelFunc) *Subscription {
	return &Subscription{ch: make(chan json.RawMessage, 1), cancel: cancel}
}

// Snapshots yields full-state snapshots until the subscription ends.
// The channel is closed after Close or context cancellation.
func (s *Subscription) Snapshots() <-chan json.RawMessage { return s.ch }

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() { s.once.Do(s.cancel) }

// deliver hands a snapshot to the consumer, dropping the stale buffered
// one when the consumer lags; only the latest snapshot matters.
func (s *Subscription) deliver(ctx context.Context, snap json.RawMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
