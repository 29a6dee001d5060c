// Package limiter implements client-side sliding-window rate limiting
// with escalating blocks. It is an advisory speed bump against accidental
// abuse, not a security boundary; state is persisted per action name
// through a pluggable Store so blocks survive restarts.
package limiter

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Rule bounds one named action: at most MaxRequests inside Window,
// otherwise the action is blocked for BlockDuration.
type Rule struct {
	MaxRequests   int
	Window        time.Duration
	BlockDuration time.Duration
}

// defaultRules mirror the per-action table of the blog UI.
var defaultRules = map[string]Rule{
	"comment":        {MaxRequests: 3, Window: time.Minute, BlockDuration: 5 * time.Minute},
	"login":          {MaxRequests: 5, Window: time.Minute, BlockDuration: 10 * time.Minute},
	"articlePublish": {MaxRequests: 10, Window: time.Hour, BlockDuration: 30 * time.Minute},
	"upload":         {MaxRequests: 20, Window: time.Minute, BlockDuration: 5 * time.Minute},
}

// fallbackRule applies to action names without a registered rule.
var fallbackRule = Rule{MaxRequests: 5, Window: time.Minute, BlockDuration: 5 * time.Minute}

// Decision reports whether an action is currently allowed and, when
// blocked, how long the caller should wait (ceiled to whole seconds).
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter tracks request timestamps per action name in a sliding window.
// Check-then-record is a critical section per action name: concurrent
// callers never both pass for what should be the (MaxRequests+1)-th call.
type Limiter struct {
	store Store
	log   *zap.Logger
	now   func() time.Time

	mu    sync.Mutex
	rules map[string]Rule
	locks map[string]*sync.Mutex
}

// New constructs a Limiter with the default per-action rules.
func New(store Store, log *zap.Logger) *Limiter {
	rules := make(map[string]Rule, len(defaultRules))
	for name, r := range defaultRules {
		rules[name] = r
	}
	return &Limiter{
		store: store,
		log:   log,
		now:   time.Now,
		rules: rules,
		locks: make(map[string]*sync.Mutex),
	}
}

// Register adds or overrides the rule for an action name.
func (l *Limiter) Register(name string, r Rule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules[name] = r
}

// RuleFor returns the effective rule for an action name.
func (l *Limiter) RuleFor(name string) Rule {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rules[name]; ok {
		return r
	}
	return fallbackRule
}

// Check reports whether the action is allowed right now. The purged
// window is persisted even on the allowed path so stored state never
// holds timestamps older than now-Window.
func (l *Limiter) Check(name string) (Decision, error) {
	lock := l.actionLock(name)
	lock.Lock()
	defer lock.Unlock()
	return l.checkLocked(name)
}

// Record appends the current timestamp for the action and persists.
func (l *Limiter) Record(name string) error {
	lock := l.actionLock(name)
	lock.Lock()
	defer lock.Unlock()
	return l.recordLocked(name)
}

// TryAcquire is Check followed, when allowed, by Record as one atomic
// step with respect to other calls against the same action name.
func (l *Limiter) TryAcquire(name string) (Decision, error) {
	lock := l.actionLock(name)
	lock.Lock()
	defer lock.Unlock()

	d, err := l.checkLocked(name)
	if err != nil || !d.Allowed {
		return d, err
	}
	if err := l.recordLocked(name); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// Reset clears both the request window and any active block.
func (l *Limiter) Reset(name string) error {
	lock := l.actionLock(name)
	lock.Lock()
	defer lock.Unlock()
	return l.store.Delete(name)
}

func (l *Limiter) checkLocked(name string) (Decision, error) {
	st, _, err := l.store.Load(name)
	if err != nil {
		return Decision{}, err
	}
	rule := l.RuleFor(name)
	now := l.now().UnixMilli()

	if st.BlockedUntil != 0 && now < st.BlockedUntil {
		return Decision{RetryAfter: ceilSeconds(st.BlockedUntil - now)}, nil
	}
	st.BlockedUntil = 0

	st.Requests = purge(st.Requests, now, rule.Window)

	if len(st.Requests) >= rule.MaxRequests {
		st.BlockedUntil = now + rule.BlockDuration.Milliseconds()
		if err := l.store.Save(name, st); err != nil {
			return Decision{}, err
		}
		l.log.Warn("action blocked",
			zap.String("action", name),
			zap.Int("requests", len(st.Requests)),
			zap.Duration("block", rule.BlockDuration),
		)
		return Decision{RetryAfter: ceilSeconds(rule.BlockDuration.Milliseconds())}, nil
	}

	if err := l.store.Save(name, st); err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true}, nil
}

func (l *Limiter) recordLocked(name string) error {
	st, _, err := l.store.Load(name)
	if err != nil {
		return err
	}
	now := l.now().UnixMilli()
	st.Requests = append(purge(st.Requests, now, l.RuleFor(name).Window), now)
	return l.store.Save(name, st)
}

// actionLock returns the mutex guarding one action name, creating it on
// first use.
func (l *Limiter) actionLock(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[name] = lock
	}
	return lock
}

// purge drops timestamps older than now-window, keeping source order.
func purge(requests []int64, now int64, window time.Duration) []int64 {
	cutoff := now - window.Milliseconds()
	kept := requests[:0:len(requests)]
	for _, ts := range requests {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}

// ceilSeconds rounds a millisecond span up to whole seconds.
func ceilSeconds(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration((ms+999)/1000) * time.Second
}
