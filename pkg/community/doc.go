// Package community declares the collaborators the real-time core depends on
// but does not own: the identity directory, conversation persistence and
// message persistence.
//
// In-memory implementations live in this package for tests and
// single-process deployments; the mongostore and pgdirectory subpackages
// provide database-backed adapters. CachedDirectory puts an expiring LRU in
// front of any IdentityDirectory.
package community
