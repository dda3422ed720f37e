package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in a process-local map.
type MemoryStore struct {
	mu           sync.RWMutex
	records      map[string]Record
	tombstoneTTL time.Duration
	now          func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the clock used for tombstones and pruning.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMemoryTombstoneTTL sets the lifetime of blacklist entries for unknown ids.
func WithMemoryTombstoneTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.tombstoneTTL = ttl
		}
	}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records:      make(map[string]Record),
		tombstoneTTL: DefaultTombstoneTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.TokenID]; ok && existing.Blacklisted {
		rec.Blacklisted = true
	}
	s.records[rec.TokenID] = rec
	return nil
}

func (s *MemoryStore) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, wrapUnavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[tokenID]
	return ok && rec.Blacklisted, nil
}

func (s *MemoryStore) Blacklist(ctx context.Context, tokenID string) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tokenID]
	if !ok {
		now := s.now()
		rec = Record{TokenID: tokenID, CreatedAt: now, ExpiresAt: now.Add(s.tombstoneTTL)}
	}
	rec.Blacklisted = true
	s.records[tokenID] = rec
	return nil
}

func (s *MemoryStore) Prune(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapUnavailable(err)
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// Lookup returns the stored record for tokenID.
func (s *MemoryStore) Lookup(tokenID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[tokenID]
	return rec, ok
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
