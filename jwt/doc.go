// Package jwt issues and decodes the access and refresh tokens used by goGuard.
//
// Both kinds share one signing mechanism (HS256 shared secret or Ed25519) and differ
// in default lifetime and claims: refresh tokens carry the subject only.
//
// [Manager.Decode] verifies the signature before any claim, so a caller can only
// learn that a token expired if it was genuinely issued by this Manager. All other
// failures collapse into [ErrMalformed].
package jwt
