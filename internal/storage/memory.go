package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Used by default and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	matches []MatchRecord
	stats   []PlayerStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendMatch(ctx context.Context, rec MatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, rec)
	return nil
}

func (s *MemoryStore) AppendPlayerStats(ctx context.Context, stats []PlayerStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, stats...)
	return nil
}

// Matches returns a copy of the recorded match history.
func (s *MemoryStore) Matches() []MatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MatchRecord(nil), s.matches...)
}

// PlayerStats returns a copy of the recorded player lines.
func (s *MemoryStore) PlayerStats() []PlayerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlayerStats(nil), s.stats...)
}

func (s *MemoryStore) Close() error { return nil }
