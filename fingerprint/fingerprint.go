package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// DefaultHeader is the request header the client uses to present its fingerprint.
const DefaultHeader = "X-Device-Fingerprint"

const digestVersion = "v1:"

// Fingerprint is an optional device fingerprint. The zero value is absent.
type Fingerprint struct {
	value   string
	present bool
}

// None returns an absent fingerprint.
func None() Fingerprint {
	return Fingerprint{}
}

// New returns a present fingerprint. Surrounding whitespace is trimmed; a blank value
// yields an absent fingerprint.
func New(value string) Fingerprint {
	value = strings.TrimSpace(value)
	if value == "" {
		return Fingerprint{}
	}
	return Fingerprint{value: value, present: true}
}

// FromHeader reads the fingerprint from h under name, falling back to DefaultHeader
// when name is empty.
func FromHeader(h http.Header, name string) Fingerprint {
	if h == nil {
		return Fingerprint{}
	}
	if name == "" {
		name = DefaultHeader
	}
	return New(h.Get(name))
}

// Present reports whether a fingerprint was supplied.
func (f Fingerprint) Present() bool {
	return f.present
}

// Value returns the raw fingerprint and its presence.
func (f Fingerprint) Value() (string, bool) {
	return f.value, f.present
}

// Digest returns the version-prefixed hex SHA-256 digest carried in tokens, or "" when
// the fingerprint is absent.
func (f Fingerprint) Digest() string {
	if !f.present {
		return ""
	}
	sum := sha256.Sum256([]byte(f.value))
	return digestVersion + hex.EncodeToString(sum[:])
}

// Matches reports whether f is present and its digest equals digest.
func (f Fingerprint) Matches(digest string) bool {
	if !f.present || digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(f.Digest()), []byte(digest)) == 1
}

func (f Fingerprint) String() string {
	if !f.present {
		return "<none>"
	}
	return "<fingerprint>"
}
