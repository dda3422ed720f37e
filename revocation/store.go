package revocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnavailable wraps every backend failure, including timeouts.
	ErrUnavailable = errors.New("revocation store unavailable")
	// ErrInvalidRecord is returned by Insert for a record without identifier or expiry.
	ErrInvalidRecord = errors.New("invalid revocation record")
)

// Kind values mirror the token kinds minted by the jwt package.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Record is the persisted state of one issued token.
type Record struct {
	TokenID     string
	Subject     string
	Kind        string
	Blacklisted bool
	ExpiresAt   time.Time
	IssuedIP    string
	UserAgent   string
	CreatedAt   time.Time
}

// Validate reports whether r can be stored. Failures wrap ErrInvalidRecord.
func (r Record) Validate() error {
	if strings.TrimSpace(r.TokenID) == "" {
		return fmt.Errorf("%w: empty token id", ErrInvalidRecord)
	}
	if r.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: zero expiry", ErrInvalidRecord)
	}
	switch r.Kind {
	case "", KindAccess, KindRefresh:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, r.Kind)
	}
	return nil
}

// Store is the revocation backend contract. Implementations are safe for concurrent use.
type Store interface {
	// Insert stores rec. It never clears a blacklist flag already recorded for the
	// same identifier.
	Insert(ctx context.Context, rec Record) error
	// IsBlacklisted reports whether tokenID is blacklisted. Unknown ids are not.
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
	// Blacklist marks tokenID as revoked. Idempotent; unknown ids get a tombstone.
	Blacklist(ctx context.Context, tokenID string) error
	// Prune removes records whose expiry has passed and returns how many it removed.
	Prune(ctx context.Context) (int, error)
}

// DefaultTombstoneTTL bounds how long a blacklist entry for an unknown identifier is
// kept. It matches the default refresh-token lifetime.
const DefaultTombstoneTTL = 7 * 24 * time.Hour

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
