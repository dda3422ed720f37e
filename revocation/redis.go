package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldSubject   = "sub"
	fieldKind      = "kind"
	fieldBlacklist = "bl"
	fieldExpiresAt = "exp"
	fieldIP        = "ip"
	fieldUserAgent = "ua"
	fieldCreatedAt = "created"
)

// blacklistScript flags an existing record or creates a tombstone that expires after
// ARGV[2] milliseconds.
const blacklistScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "bl", "1")
  return 1
end
redis.call("HSET", KEYS[1], "bl", "1", "created", ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 0
`

var blacklistLua = redis.NewScript(blacklistScript)

// RedisStore keeps one hash per token identifier. Keys expire natively at the record's
// ExpiresAt, so Prune has nothing to do.
type RedisStore struct {
	redis        redis.UniversalClient
	prefix       string
	tombstoneTTL time.Duration
	now          func() time.Time
}

// NewRedisStore returns a RedisStore using keys under prefix. A non-positive
// tombstoneTTL selects DefaultTombstoneTTL.
func NewRedisStore(client redis.UniversalClient, prefix string, tombstoneTTL time.Duration) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "gg"
	}
	if tombstoneTTL <= 0 {
		tombstoneTTL = DefaultTombstoneTTL
	}
	return &RedisStore{
		redis:        client,
		prefix:       prefix,
		tombstoneTTL: tombstoneTTL,
		now:          time.Now,
	}
}

func (s *RedisStore) key(tokenID string) string {
	return s.prefix + ":rv:" + tokenID
}

func (s *RedisStore) Insert(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	now := s.now()
	if !rec.ExpiresAt.After(now) {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	key := s.key(rec.TokenID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldSubject, rec.Subject,
			fieldKind, rec.Kind,
			fieldExpiresAt, rec.ExpiresAt.UnixMilli(),
			fieldIP, rec.IssuedIP,
			fieldUserAgent, rec.UserAgent,
			fieldCreatedAt, rec.CreatedAt.UnixMilli(),
		)
		if rec.Blacklisted {
			pipe.HSet(ctx, key, fieldBlacklist, "1")
		} else {
			pipe.HSetNX(ctx, key, fieldBlacklist, "0")
		}
		pipe.PExpireAt(ctx, key, rec.ExpiresAt)
		return nil
	})
	if err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (s *RedisStore) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	val, err := s.redis.HGet(ctx, s.key(tokenID), fieldBlacklist).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, wrapUnavailable(err)
	}
	return val == "1", nil
}

func (s *RedisStore) Blacklist(ctx context.Context, tokenID string) error {
	if strings.TrimSpace(tokenID) == "" {
		return fmt.Errorf("%w: empty token id", ErrInvalidRecord)
	}
	args := []interface{}{s.now().UnixMilli(), s.tombstoneTTL.Milliseconds()}
	if err := blacklistLua.Run(ctx, s.redis, []string{s.key(tokenID)}, args...).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

// Prune is a no-op: Redis expires keys at each record's ExpiresAt.
func (s *RedisStore) Prune(context.Context) (int, error) {
	return 0, nil
}

// Get returns the stored record for tokenID. The bool is false when no record exists.
func (s *RedisStore) Get(ctx context.Context, tokenID string) (Record, bool, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(tokenID)).Result()
	if err != nil {
		return Record{}, false, wrapUnavailable(err)
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}
	rec := Record{
		TokenID:     tokenID,
		Subject:     fields[fieldSubject],
		Kind:        fields[fieldKind],
		Blacklisted: fields[fieldBlacklist] == "1",
		IssuedIP:    fields[fieldIP],
		UserAgent:   fields[fieldUserAgent],
		ExpiresAt:   parseMillis(fields[fieldExpiresAt]),
		CreatedAt:   parseMillis(fields[fieldCreatedAt]),
	}
	return rec, true, nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func parseMillis(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
