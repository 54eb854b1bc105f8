// Package directory implements POSIX identity management against an LDAP
// directory: users (posixAccount) and groups (posixGroup) with consistent
// numeric ids and cross-referenced membership.
//
// The directory offers no multi-entry transactions, so every operation is a
// read-validate-then-write sequence. Validation failures are detected before
// any write where possible; once writes begin there is no rollback, and a
// failure mid-sequence is surfaced to the caller verbatim. Idempotent
// primitives (already-exists checks, no-op membership adds) keep retries
// safe.
package directory
