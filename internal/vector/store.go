package vector

import "sync"

// Store wraps a Manager for concurrent use. Searches, snapshots and counts share
// the lock; upserts, deletes, resets and restores take it exclusively, so a reader
// never observes a partially applied batch.
type Store struct {
	mu      sync.RWMutex
	manager *Manager
}

// NewStore wraps m. The caller must not use m directly afterwards.
func NewStore(m *Manager) *Store {
	return &Store{manager: m}
}

// Upsert applies a batch of records atomically.
func (s *Store) Upsert(records []Record) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Upsert(records)
}

// Delete removes the given ids.
func (s *Store) Delete(ids []int64) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Delete(ids)
}

// Search returns up to k hits for query.
func (s *Store) Search(query []float32, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager.Search(query, k)
}

// Reset clears the index.
func (s *Store) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Reset()
}

// Snapshot encodes a consistent view of the index.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager.Snapshot()
}

// Restore replaces the index with the state encoded in data. Decoding happens
// before the write lock is taken; searches keep running against the old state until the swap.
func (s *Store) Restore(data []byte) error {
	decoded, err := DecodeSnapshot(data, s.manager.opts)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.adopt(decoded)
}

// Count returns the number of live records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager.Count()
}

// Dimension returns the fixed vector dimension.
func (s *Store) Dimension() int { return s.manager.Dimension() }

// Variant returns the fixed index variant.
func (s *Store) Variant() Variant { return s.manager.Variant() }

// Metric returns the fixed similarity metric.
func (s *Store) Metric() Metric { return s.manager.Metric() }
