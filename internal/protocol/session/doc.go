// Package session owns one fetch-and-reconcile run against the feed server.
//
// Ownership boundary:
// - bulk and resend connection lifecycle
// - packet store and gap detection
// - retry/backoff primitives
//
// A run is strictly sequential: one connection at a time, one read loop
// feeding one tracker. Resend rounds repeat until no gap remains or the
// configured round limit is reached.
package session
