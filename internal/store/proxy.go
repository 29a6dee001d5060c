package store

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const proxyTimeout = 30 * time.Second

// Proxy sends every operation as a stateless HTTP request to the relay,
// which forwards verb-mapped calls to the store and owns CORS. Because
// the relay keeps no connection open, change delivery degrades to
// polling full snapshots.
type Proxy struct {
	restClient
	interval time.Duration
	log      *zap.Logger
}

// NewProxy constructs a relay client polling at the given interval.
func NewProxy(baseURL string, pollInterval time.Duration, log *zap.Logger) *Proxy {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Proxy{
		restClient: restClient{
			base: strings.TrimRight(baseURL, "/"),
			hc:   &http.Client{Timeout: proxyTimeout},
		},
		interval: pollInterval,
		log:      log,
	}
}

// Subscribe polls path and delivers a snapshot whenever it changes.
// The first successful read is delivered immediately.
func (p *Proxy) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	sctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)

	go func() {
		defer close(sub.ch)
		var last []byte
		poll := func() {
			snap, err := p.Get(sctx, path)
			if err != nil {
				if sctx.Err() == nil {
					p.log.Warn("poll failed", zap.String("path", path), zap.Error(err))
				}
				return
			}
			if last != nil && bytes.Equal(last, snap) {
				return
			}
			last = snap
			sub.deliver(sctx, snap)
		}

		poll()
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-sctx.Done():
				return
			case <-t.C:
				poll()
			}
		}
	}()
	return sub, nil
}

// Health checks the relay's /health endpoint. Used for diagnostics
// only; a failure never changes the routing decision.
func (p *Proxy) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay health: status %d", resp.StatusCode)
	}
	return nil
}
