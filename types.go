package goGuard

import (
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/fingerprint"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/jwt"
)

// RoleSet is the set of roles allowed through the authorization gate. The zero value
// is empty and allows every role.
type RoleSet struct {
	roles map[string]struct{}
}

// Roles builds a RoleSet. Blank names are ignored.
func Roles(names ...string) RoleSet {
	s := RoleSet{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if s.roles == nil {
			s.roles = make(map[string]struct{}, len(names))
		}
		s.roles[name] = struct{}{}
	}
	return s
}

func (s RoleSet) Empty() bool {
	return len(s.roles) == 0
}

func (s RoleSet) Len() int {
	return len(s.roles)
}

// Contains reports whether role is a member. Matching is exact.
func (s RoleSet) Contains(role string) bool {
	_, ok := s.roles[role]
	return ok
}

// Allows reports whether role passes the gate: any role when s is empty.
func (s RoleSet) Allows(role string) bool {
	return s.Empty() || s.Contains(role)
}

// List returns the members in sorted order.
func (s RoleSet) List() []string {
	out := make([]string, 0, len(s.roles))
	for r := range s.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Authenticated is a successful validation outcome.
type Authenticated struct {
	Identity identity.Identity
	// Token is the raw credential that was presented.
	Token  string
	Claims *jwt.Claims
}

func (a *Authenticated) Subject() string {
	if a == nil {
		return ""
	}
	return a.Identity.SubjectID
}

func (a *Authenticated) TokenID() string {
	if a == nil || a.Claims == nil {
		return ""
	}
	return a.Claims.ID
}

// Role is the subject's current role as resolved at validation time.
func (a *Authenticated) Role() string {
	if a == nil {
		return ""
	}
	return a.Identity.Role
}

// ExpiresAt returns the token expiry, or the zero time.
func (a *Authenticated) ExpiresAt() time.Time {
	if a == nil || a.Claims == nil || a.Claims.ExpiresAt == nil {
		return time.Time{}
	}
	return a.Claims.ExpiresAt.Time
}

// TokenPair is the credential pair handed to a client after login.
type TokenPair struct {
	Access  jwt.Token
	Refresh jwt.Token
}

// SessionInput describes a freshly authenticated subject. Login handlers fill it in
// after verifying credentials.
type SessionInput struct {
	Subject     string
	Role        string
	Fingerprint fingerprint.Fingerprint
	IP          string
	UserAgent   string
}
