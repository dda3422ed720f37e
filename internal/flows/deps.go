package flows

import (
	"context"

	"github.com/MrEthical07/goGuard/identity"
)

// Deps groups flow dependency sets. The root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Validate ValidateDeps
	Refresh  RefreshDeps
}

// BlacklistLookup reports whether a token identifier is blacklisted.
type BlacklistLookup func(ctx context.Context, tokenID string) (bool, error)

// IdentityLookup resolves a subject id. identity.ErrNotFound marks a missing subject;
// any other error is treated as an upstream failure.
type IdentityLookup func(ctx context.Context, subjectID string) (identity.Identity, error)
