// Package registry maps identities to their live connections.
//
// Presence is reference counted per identity: the first connection of an
// identity reports an online transition and the removal of its last
// connection reports an offline transition. Intermediate registrations from
// additional devices do not produce transitions. State is split across
// buckets keyed by identity hash, each guarded by its own lock.
package registry
