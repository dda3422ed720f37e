package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no identity exists for the subject.
	ErrNotFound = errors.New("identity not found")
	// ErrUnavailable wraps backend failures, including timeouts.
	ErrUnavailable = errors.New("identity backend unavailable")
)

// Identity is the current state of a token subject.
type Identity struct {
	SubjectID string
	Role      string
	// PasswordChangedAt is nil when the credentials were never changed.
	PasswordChangedAt *time.Time
}

// SupersedesIssuedAt reports whether credentials changed after a token issued at iat.
// Tokens record issuance in milliseconds, so the change time is compared at the same
// precision.
func (i Identity) SupersedesIssuedAt(iat time.Time) bool {
	return i.PasswordChangedAt != nil && i.PasswordChangedAt.Truncate(time.Millisecond).After(iat)
}

// Resolver looks up identities by subject id.
type Resolver interface {
	FindByID(ctx context.Context, subjectID string) (Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, subjectID string) (Identity, error)

func (f ResolverFunc) FindByID(ctx context.Context, subjectID string) (Identity, error) {
	return f(ctx, subjectID)
}

// Directory is a concurrency-safe in-memory Resolver.
type Directory struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

// NewDirectory returns a Directory seeded with ids.
func NewDirectory(ids ...Identity) *Directory {
	d := &Directory{identities: make(map[string]Identity, len(ids))}
	for _, id := range ids {
		d.identities[id.SubjectID] = cloneIdentity(id)
	}
	return d
}

// Put stores or replaces an identity.
func (d *Directory) Put(id Identity) {
	d.mu.Lock()
	d.identities[id.SubjectID] = cloneIdentity(id)
	d.mu.Unlock()
}

// Delete removes the identity for subjectID.
func (d *Directory) Delete(subjectID string) {
	d.mu.Lock()
	delete(d.identities, subjectID)
	d.mu.Unlock()
}

// SetPasswordChangedAt records a credential change for subjectID.
func (d *Directory) SetPasswordChangedAt(subjectID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.identities[subjectID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, subjectID)
	}
	id.PasswordChangedAt = &at
	d.identities[subjectID] = id
	return nil
}

func (d *Directory) FindByID(ctx context.Context, subjectID string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.identities[subjectID]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return cloneIdentity(id), nil
}

func cloneIdentity(id Identity) Identity {
	if id.PasswordChangedAt != nil {
		at := *id.PasswordChangedAt
		id.PasswordChangedAt = &at
	}
	return id
}
