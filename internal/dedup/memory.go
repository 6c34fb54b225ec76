package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local store. Records are lost on restart.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) CheckAndMark(_ context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec, ok := s.records[messageID]; ok && rec.live(now) {
		return true, nil
	}
	s.records[messageID] = Record{MessageID: messageID, MarkedAt: now, ExpiresAt: now.Add(s.ttl)}
	return false, nil
}

func (s *MemoryStore) Purge(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var deleted int
	for id, rec := range s.records {
		if !rec.live(now) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Close() error { return nil }
