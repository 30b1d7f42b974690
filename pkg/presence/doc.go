// Package presence turns registry edges into user_status_changed events.
//
// Broadcaster implements registry.Observer. Transitions are queued and
// processed by a single worker, so for one identity an offline event is never
// published before the online event it closes. Each event carries a
// per-identity sequence number and a timestamp; observers that receive
// events through other paths reconcile them with Tracker, which keeps the
// latest one.
//
// Relay subscribes to the global stream and forwards events to live
// connections: every connection by default, or only connections sharing a
// conversation with the subject when room scoping is enabled.
package presence
