// Package rooms indexes live connections by conversation.
//
// Each connection also tracks its own joined rooms, so removing a closed
// connection touches only the rooms it was in. Fan-out reads a Snapshot,
// which is a copy taken under the room's bucket lock: connections joining
// afterwards do not receive that delivery.
package rooms
