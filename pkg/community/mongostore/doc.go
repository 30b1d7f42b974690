// Package mongostore persists conversations and messages in MongoDB.
//
// Conversations embed their participants, so unread counters and last-seen
// stamps are updated in place with array filters. Read receipts use
// $addToSet, which keeps the read set duplicate-free under concurrent
// readers.
package mongostore
