package fingerprint

import "sync"

// Store maps entity keys to the fingerprint of their last-ingested state.
// In-memory only: after a restart every entity looks changed on first
// sight, which is safe because all downstream writes are idempotent
// upserts. Entries are never deleted; entities that disappear from the
// snapshot are not retracted.
type Store struct {
	mu sync.RWMutex
	m  map[Key]string
}

// NewStore creates an empty fingerprint store.
func NewStore() *Store {
	return &Store{m: make(map[Key]string)}
}

// Get returns the stored fingerprint for k. A missing key is a normal
// "unseen" state, not an error.
func (s *Store) Get(k Key) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.m[k]
	return fp, ok
}

// Set stores fp under k, replacing any previous value.
func (s *Store) Set(k Key, fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = fp
}

// CompareAndSet stores fp and reports true when it differs from the stored
// value or no value was stored; reports false and leaves the entry alone
// when identical.
func (s *Store) CompareAndSet(k Key, fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.m[k]; ok && old == fp {
		return false
	}
	s.m[k] = fp
	return true
}

// Len returns the number of tracked entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
