// Package fingerprint models the caller-supplied device fingerprint that goGuard binds
// into access tokens.
//
// A [Fingerprint] is an optional value with explicit presence. Tokens never carry the
// raw value: they carry [Fingerprint.Digest], and comparison against a presented
// fingerprint is constant time.
//
// # What this package must NOT do
//
//   - Derive fingerprints from request attributes (the client supplies them).
//   - Treat an empty header as a present fingerprint.
package fingerprint
