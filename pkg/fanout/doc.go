// Package fanout delivers persisted messages to the live connections of a
// conversation and hands offline participants to the notification
// dispatcher.
//
// Dispatch snapshots the room, pushes new_message to every snapshot member
// except the sender's own connections and then queues a background
// notification for each participant without a live connection whose
// message toggle is on. Deliveries of the same conversation are serialized
// so two messages never interleave on a connection. A failing connection or
// channel never fails the dispatch: the message is already persisted.
//
//	engine := fanout.New(index, reg, store,
//		fanout.WithDirectory(directory),
//		fanout.WithNotifier(dispatcher),
//	)
//	report, err := engine.Dispatch(ctx, msg)
package fanout
