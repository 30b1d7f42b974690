package notifications

import "context"

// DefaultCapacity is the per-user buffer size when none is configured.
const DefaultCapacity = 100

// Store is the bounded per-user replay buffer. It is not durable.
type Store interface {
	// Push appends n to its recipient's buffer and reports how many older
	// notifications were evicted.
	Push(ctx context.Context, n Notification) (int, error)
	Get(ctx context.Context, id string) (Notification, error)
	// List returns the recipient's notifications, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)
	// MarkRead marks the given notifications of userID as read and reports
	// how many changed state.
	MarkRead(ctx context.Context, userID string, ids ...string) (int, error)
	// MarkReadByID marks a notification read knowing only its id.
	MarkReadByID(ctx context.Context, id string) (Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	Stats(ctx context.Context) (StoreStats, error)
}

// ListOptions filters List. A Limit of 0 returns everything buffered.
type ListOptions struct {
	Limit      int
	OnlyUnread bool
}

type StoreStats struct {
	Users         int `json:"users"`
	Notifications int `json:"notifications"`
	Unread        int `json:"unread"`
}

func applyList(newestFirst []Notification, opts ListOptions) []Notification {
	out := make([]Notification, 0, len(newestFirst))
	for _, n := range newestFirst {
		if opts.OnlyUnread && n.Read {
			continue
		}
		out = append(out, n)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}
