package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Probe runs a one-shot reachability test against the direct store
// endpoint. The result is cached: a session probes at most once.
type Probe struct {
	storeURL string
	timeout  time.Duration
	hc       *http.Client
	log      *zap.Logger
}

// NewProbe constructs a probe with a bounded timeout. Expiry of the
// timeout counts as unreachable, same as any transport failure.
func NewProbe(storeURL string, timeout time.Duration, log *zap.Logger) *Probe {
	return &Probe{
		storeURL: storeURL,
		timeout:  timeout,
		hc:       &http.Client{},
		log:      log,
	}
}

// DirectReachable fetches a minimal slice of data from the store and
// reports whether it arrived in time and parsed as JSON.
func (p *Probe) DirectReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	url := p.storeURL + "/articles.json?shallow=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.log.Warn("probe request", zap.Error(err))
		return false
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		p.log.Warn("direct store unreachable", zap.Duration("after", time.Since(start)), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.log.Warn("direct store probe rejected", zap.Int("status", resp.StatusCode))
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || !json.Valid(body) {
		p.log.Warn("direct store probe returned invalid data", zap.Error(err))
		return false
	}
	p.log.Info("direct store reachable", zap.Duration("rtt", time.Since(start)))
	return true
}
