// Package revocation stores one record per issued token identifier and answers whether
// a token has been blacklisted.
//
// # Implementations
//
//   - [RedisStore]: one hash per token, native key expiry, Lua for blacklist upserts.
//   - [MongoStore]: one document per token, TTL index on expiresAt plus explicit sweeps.
//   - [MemoryStore]: process-local map for tests and single-node demos.
//
// [Pruner] drives [Store.Prune] on an interval for backends without native expiry.
//
// # Lifecycle
//
// Records are created on issuance, rewritten on blacklisting and removed once their
// expiry passes. Blacklisting an unknown identifier creates a tombstone so that a late
// Insert for the same identifier cannot clear the flag.
//
// # What this package must NOT do
//
//   - Decode tokens or know about signing keys.
//   - Retry backend calls; callers own retry policy.
//   - Prune a record before its own ExpiresAt.
package revocation
