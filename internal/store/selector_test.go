package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Kazama-Suichiku/blogstore/internal/config"
	"github.com/Kazama-Suichiku/blogstore/internal/model"
)

type fakeProber struct {
	reachable bool
	calls     int
}

func (f *fakeProber) DirectReachable(context.Context) bool {
	f.calls++
	return f.reachable
}

type fakeHealth struct {
	checked chan struct{}
	err     error
}

func (f *fakeHealth) Health(context.Context) error {
	select {
	case f.checked <- struct{}{}:
	default:
	}
	return f.err
}

// fakeTransport records which client every verb landed on.
type fakeTransport struct {
	name string
	ops  []string
}

func (f *fakeTransport) Get(context.Context, string) (json.RawMessage, error) {
	f.ops = append(f.ops, "get")
	return json.RawMessage(`null`), nil
}
func (f *fakeTransport) Set(context.Context, string, any) error {
	f.ops = append(f.ops, "set")
	return nil
}
func (f *fakeTransport) Push(context.Context, string, any) (string, error) {
	f.ops = append(f.ops, "push")
	return "k", nil
}
func (f *fakeTransport) Update(context.Context, string, any) error {
	f.ops = append(f.ops, "update")
	return nil
}
func (f *fakeTransport) Delete(context.Context, string) error {
	f.ops = append(f.ops, "delete")
	return nil
}
func (f *fakeTransport) Subscribe(context.Context, string) (*Subscription, error) {
	f.ops = append(f.ops, "subscribe")
	return nil, errors.New("not implemented")
}

var _ Client = (*fakeTransport)(nil)

func newTestSelector(policy config.ProxyPolicy, probe *fakeProber, health *fakeHealth) (*Selector, *fakeTransport, *fakeTransport) {
	direct := &fakeTransport{name: "direct"}
	proxy := &fakeTransport{name: "proxy"}
	if health == nil {
		health = &fakeHealth{checked: make(chan struct{}, 1)}
	}
	return &Selector{
		policy: policy,
		probe:  probe,
		health: health,
		direct: direct,
		proxy:  proxy,
		log:    zap.NewNop(),
	}, direct, proxy
}

func TestMode_OffSkipsProbe(t *testing.T) {
	probe := &fakeProber{}
	s, _, _ := newTestSelector(config.ProxyOff, probe, nil)

	if got := s.Mode(context.Background()); got != model.ModeDirect {
		t.Fatalf("policy off: want direct, got %s", got)
	}
	if probe.calls != 0 {
		t.Fatalf("policy off must not probe")
	}
}

func TestMode_ForceSkipsProbe(t *testing.T) {
	probe := &fakeProber{reachable: true}
	health := &fakeHealth{checked: make(chan struct{}, 1)}
	s, _, _ := newTestSelector(config.ProxyForce, probe, health)

	if got := s.Mode(context.Background()); got != model.ModeProxy {
		t.Fatalf("policy force: want proxy, got %s", got)
	}
	if probe.calls != 0 {
		t.Fatalf("policy force must not probe")
	}
	select {
	case <-health.checked:
	case <-time.After(time.Second):
		t.Fatalf("forced proxy should run a diagnostic health check")
	}
}

func TestMode_AutoProbesOnceAndCaches(t *testing.T) {
	probe := &fakeProber{reachable: true}
	s, _, _ := newTestSelector(config.ProxyAuto, probe, nil)

	ctx := context.Background()
	if got := s.Mode(ctx); got != model.ModeDirect {
		t.Fatalf("reachable store: want direct, got %s", got)
	}
	for i := 0; i < 3; i++ {
		if got := s.Mode(ctx); got != model.ModeDirect {
			t.Fatalf("cached mode changed to %s", got)
		}
	}
	if probe.calls != 1 {
		t.Fatalf("one probe per session, got %d", probe.calls)
	}
}

func TestMode_AutoFallsBackToProxy(t *testing.T) {
	health := &fakeHealth{checked: make(chan struct{}, 1), err: errors.New("down")}
	s, _, _ := newTestSelector(config.ProxyAuto, &fakeProber{reachable: false}, health)

	if got := s.Mode(context.Background()); got != model.ModeProxy {
		t.Fatalf("unreachable store: want proxy, got %s", got)
	}
	// A failing health check is diagnostics only; the decision stands.
	select {
	case <-health.checked:
	case <-time.After(time.Second):
		t.Fatalf("proxy decision should run a diagnostic health check")
	}
	if got := s.Mode(context.Background()); got != model.ModeProxy {
		t.Fatalf("decision reversed to %s", got)
	}
}

func TestSelector_RoutesVerbsToActiveClient(t *testing.T) {
	s, direct, proxy := newTestSelector(config.ProxyOff, &fakeProber{}, nil)
	ctx := context.Background()

	if _, err := s.Get(ctx, "articles"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := s.Set(ctx, "articles/a1", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.Push(ctx, "comments", 1); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := s.Update(ctx, "articles/a1", 1); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Delete(ctx, "comments/k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(direct.ops) != 5 {
		t.Fatalf("direct should carry all verbs, got %v", direct.ops)
	}
	if len(proxy.ops) != 0 {
		t.Fatalf("proxy must stay idle, got %v", proxy.ops)
	}
}

func TestForceProxy_OverridesRouting(t *testing.T) {
	s, direct, proxy := newTestSelector(config.ProxyAuto, &fakeProber{reachable: true}, nil)
	s.ForceProxy()

	if _, err := s.Get(context.Background(), "articles"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(proxy.ops) != 1 || len(direct.ops) != 0 {
		t.Fatalf("override must route to proxy: direct=%v proxy=%v", direct.ops, proxy.ops)
	}
}
