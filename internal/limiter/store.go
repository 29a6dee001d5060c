package limiter

import "sync"

// State is the persisted window for one action name.
type State struct {
	Requests     []int64 `json:"requests"`     // unix ms, all within the current window after a purge
	BlockedUntil int64   `json:"blockedUntil"` // unix ms, 0 = not blocked
}

// Store persists limiter state per action name. Keys are shaped as
// rate_limit_<name> by the implementations.
type Store interface {
	// Load returns the state for the action name and whether it existed.
	Load(name string) (State, bool, error)
	// Save overwrites the state for the action name.
	Save(name string, st State) error
	// Delete removes the state for the action name; absent is not an error.
	Delete(name string) error
}

// MemStore is an in-memory Store for tests and ephemeral sessions.
type MemStore struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]State)}
}

func (s *MemStore) Load(name string) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if ok {
		st.Requests = append([]int64(nil), st.Requests...)
	}
	return st, ok, nil
}

func (s *MemStore) Save(name string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Requests = append([]int64(nil), st.Requests...)
	s.states[name] = st
	return nil
}

func (s *MemStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, name)
	return nil
}
