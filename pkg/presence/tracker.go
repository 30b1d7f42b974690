package presence

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/pulse/pkg/events"
)

// Tracker keeps the latest known status per identity using
// last-timestamp-wins. Sequence numbers break timestamp ties.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]events.StatusPayload
}

func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]events.StatusPayload)}
}

// Apply records ev unless a newer event for the same identity is known.
// It reports whether ev was applied.
func (t *Tracker) Apply(ev events.StatusPayload) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.last[ev.UserID]; ok {
		if ev.Timestamp.Before(cur.Timestamp) {
			return false
		}
		if ev.Timestamp.Equal(cur.Timestamp) && ev.Seq <= cur.Seq {
			return false
		}
	}
	t.last[ev.UserID] = ev
	return true
}

// Status returns the known status of userID and when it was observed.
// Unknown identities are offline.
func (t *Tracker) Status(userID string) (events.Status, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur, ok := t.last[userID]
	if !ok {
		return events.Offline, time.Time{}
	}
	return cur.Status, cur.Timestamp
}

// Since returns the latest status of every identity whose last change is
// not older than t, oldest first.
func (t *Tracker) Since(at time.Time) []events.StatusPayload {
	t.mu.RLock()
	out := make([]events.StatusPayload, 0, len(t.last))
	for _, ev := range t.last {
		if !ev.Timestamp.Before(at) {
			out = append(out, ev)
		}
	}
	t.mu.RUnlock()

	slices.SortFunc(out, func(a, b events.StatusPayload) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}
