// Package identity resolves token subjects to their current identity record.
//
// The resolver is read-only from goGuard's point of view: roles and the
// password-changed-at timestamp are owned by the application's user store. No caching
// is performed, so a password change is visible to the very next validation.
package identity
