package revocation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStoreLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(WithMemoryClock(clock.Now), WithMemoryTombstoneTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, Record{TokenID: "a", Subject: "u", Kind: KindAccess, ExpiresAt: clock.Now().Add(time.Minute)}))
	require.NoError(t, s.Insert(ctx, Record{TokenID: "b", Subject: "u", Kind: KindRefresh, ExpiresAt: clock.Now().Add(10 * time.Minute)}))

	bl, err := s.IsBlacklisted(ctx, "a")
	require.NoError(t, err)
	assert.False(t, bl)

	require.NoError(t, s.Blacklist(ctx, "a"))
	require.NoError(t, s.Blacklist(ctx, "a"))
	bl, err = s.IsBlacklisted(ctx, "a")
	require.NoError(t, err)
	assert.True(t, bl)

	clock.Advance(30 * time.Second)
	removed, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "nothing may be pruned before its expiry")

	clock.Advance(time.Minute)
	removed, err = s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, ok := s.Lookup("a")
	assert.False(t, ok)
	_, ok = s.Lookup("b")
	assert.True(t, ok)
}

func TestMemoryStoreTombstoneSurvivesInsert(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(WithMemoryClock(clock.Now), WithMemoryTombstoneTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, s.Blacklist(ctx, "ghost"))
	rec, ok := s.Lookup("ghost")
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(time.Hour), rec.ExpiresAt)

	require.NoError(t, s.Insert(ctx, Record{TokenID: "ghost", Kind: KindAccess, ExpiresAt: clock.Now().Add(time.Minute)}))
	bl, err := s.IsBlacklisted(ctx, "ghost")
	require.NoError(t, err)
	assert.True(t, bl)
}

func TestMemoryStoreRejectsInvalidRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.Insert(ctx, Record{ExpiresAt: time.Now()}), ErrInvalidRecord)
	assert.ErrorIs(t, s.Insert(ctx, Record{TokenID: "x"}), ErrInvalidRecord)
	assert.ErrorIs(t, s.Insert(ctx, Record{TokenID: "x", Kind: "session", ExpiresAt: time.Now()}), ErrInvalidRecord)
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.IsBlacklisted(ctx, "a")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStoreConcurrentInsertsAreNotLost(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Insert(ctx, Record{TokenID: fmt.Sprintf("t-%d", i), ExpiresAt: time.Now().Add(time.Hour)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, s.Len())
}
