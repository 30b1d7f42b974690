// Package broadcast provides a typed one-to-many stream with non-blocking
// publication.
//
// Presence transitions are published once to a Broadcaster and every gateway
// relay subscribes to it. A subscriber whose buffer is full is dropped instead
// of slowing the publisher, so one stalled consumer never delays status
// updates for the rest of the platform.
//
//	b := broadcast.NewMemory[presence.Event](64)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	go func() {
//		for msg := range sub.Receive() {
//			relay(msg.Data)
//		}
//	}()
//
//	b.Publish(ctx, broadcast.Message[presence.Event]{Data: ev})
package broadcast
