package goGuard

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/revocation"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("goguard-test-secret-0123456789abcdef")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = append([]byte(nil), testSecret...)
	cfg.Upstream.Timeout = 250 * time.Millisecond
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type harness struct {
	engine *Engine
	store  *revocation.RedisStore
	dir    *identity.Directory
	clock  *testClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

type harnessOption func(*Builder)

func newHarness(t *testing.T, mutate func(*Config), opts ...harnessOption) *harness {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	h := &harness{
		store: revocation.NewRedisStore(rdb, cfg.Revocation.Prefix, cfg.Revocation.TombstoneTTL),
		dir: identity.NewDirectory(
			identity.Identity{SubjectID: "u-guest", Role: "guest"},
			identity.Identity{SubjectID: "u-admin", Role: "admin"},
		),
		clock: newTestClock(),
		mr:    mr,
		rdb:   rdb,
	}

	b := New().
		WithConfig(cfg).
		WithRevocationStore(h.store).
		WithIdentityResolver(h.dir).
		WithClock(h.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	h.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return h
}

func (h *harness) issue(t *testing.T, in SessionInput) TokenPair {
	t.Helper()
	pair, err := h.engine.IssueSession(context.Background(), in)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	return pair
}

func bearerRequest(token string) Request {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return Request{Header: h, ClientIP: "203.0.113.7"}
}

func requireReason(t *testing.T, err error, want Reason) *RejectionError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected rejection %s, got nil", want.Code())
	}
	rej, ok := AsRejection(err)
	if !ok {
		t.Fatalf("expected *RejectionError, got %T: %v", err, err)
	}
	if rej.Reason != want {
		t.Fatalf("expected reason %s, got %s (%v)", want.Code(), rej.Reason.Code(), err)
	}
	return rej
}
