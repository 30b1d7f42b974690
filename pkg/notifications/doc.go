// Package notifications dispatches notifications over several delivery
// channels and keeps a bounded per-user replay buffer.
//
// A Channel adapter only knows how to deliver a rendered notification to an
// address. The Dispatcher resolves the recipient through the identity
// directory, honours per-kind toggles, renders titles and bodies from the
// template catalog and then either cascades through realtime, push, email
// and SMS until one succeeds or attempts every requested channel
// independently. Per-channel failures are recorded as ChannelResult values
// and never fail the call; only a missing recipient or directory does.
//
// Every dispatched notification is written to a Store. MemoryStore and
// RedisStore both keep at most N notifications per user and evict the
// oldest first.
package notifications
