// Package flows contains the pure orchestrators behind Engine.Validate and
// Engine.Refresh.
//
// Each flow takes a typed dependency struct and returns a result carrying either the
// success payload or a failure kind. The root package maps failure kinds onto its
// closed rejection reasons.
//
// # Architecture boundaries
//
// Flows sequence calls to the token codec, revocation store and identity resolver.
// They do NOT own any of these resources, apply timeouts, log, or emit metrics.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Reorder checks: the first failing step decides the outcome.
package flows
