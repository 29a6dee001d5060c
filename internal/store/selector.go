package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kazama-Suichiku/blogstore/internal/config"
	"github.com/Kazama-Suichiku/blogstore/internal/model"
)

const healthCheckTimeout = 5 * time.Second

// prober abstracts the connectivity check for tests.
type prober interface {
	DirectReachable(ctx context.Context) bool
}

// healthChecker abstracts the diagnostic relay health check.
type healthChecker interface {
	Health(ctx context.Context) error
}

// Selector owns the per-session routing decision and dispatches every
// verb to the transport it picked. The decision is computed at most
// once; afterwards the cached mode is only read.
type Selector struct {
	policy config.ProxyPolicy
	probe  prober
	health healthChecker
	direct Client
	proxy  Client
	log    *zap.Logger

	mu         sync.Mutex
	determined bool
	mode       model.TransportMode
}

// NewSelector wires the direct and proxy clients from configuration.
func NewSelector(cfg *config.Config, log *zap.Logger) *Selector {
	proxy := NewProxy(cfg.ProxyURL, cfg.PollInterval, log)
	return &Selector{
		policy: cfg.Proxy,
		probe:  NewProbe(cfg.StoreURL, cfg.ProbeTimeout, log),
		health: proxy,
		direct: NewDirect(cfg.StoreURL, log),
		proxy:  proxy,
		log:    log,
	}
}

// Mode returns the transport decision, computing it on first call:
// policy off means direct, policy force means proxy, and auto probes
// the direct endpoint once, falling back to proxy on any failure.
func (s *Selector) Mode(ctx context.Context) model.TransportMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.determined {
		return s.mode
	}

	switch s.policy {
	case config.ProxyOff:
		s.mode = model.ModeDirect
	case config.ProxyForce:
		s.mode = model.ModeProxy
	default:
		if s.probe.DirectReachable(ctx) {
			s.mode = model.ModeDirect
		} else {
			s.mode = model.ModeProxy
		}
	}
	s.determined = true
	s.log.Info("transport mode determined",
		zap.String("policy", string(s.policy)),
		zap.Stringer("mode", s.mode),
	)

	if s.mode == model.ModeProxy {
		// Diagnostics only: a failed health check is logged and never
		// escalates or reverses the cached decision.
		go s.checkRelayHealth()
	}
	return s.mode
}

// ForceProxy overrides the decision to proxy. It is the only supported
// mutation of the cached mode.
func (s *Selector) ForceProxy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.determined = true
	s.mode = model.ModeProxy
	s.log.Info("transport mode forced", zap.Stringer("mode", s.mode))
}

func (s *Selector) checkRelayHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	if err := s.health.Health(ctx); err != nil {
		s.log.Warn("relay health check failed", zap.Error(err))
		return
	}
	s.log.Info("relay healthy")
}

// client picks the transport for the cached (or freshly computed) mode.
func (s *Selector) client(ctx context.Context) Client {
	if s.Mode(ctx) == model.ModeProxy {
		return s.proxy
	}
	return s.direct
}

func (s *Selector) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return s.client(ctx).Get(ctx, path)
}

func (s *Selector) Set(ctx context.Context, path string, v any) error {
	return s.client(ctx).Set(ctx, path, v)
}

func (s *Selector) Push(ctx context.Context, path string, v any) (string, error) {
	return s.client(ctx).Push(ctx, path, v)
}

func (s *Selector) Update(ctx context.Context, path string, partial any) error {
	return s.client(ctx).Update(ctx, path, partial)
}

func (s *Selector) Delete(ctx context.Context, path string) error {
	return s.client(ctx).Delete(ctx, path)
}

func (s *Selector) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	return s.client(ctx).Subscribe(ctx, path)
}

var _ Client = (*Selector)(nil)
