package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/events"
)

// socket adapts a websocket connection to conn.Transport. The writer pump
// is the only caller of WriteEnvelope; pings go through WriteControl, which
// gorilla allows concurrently with other writes.
type socket struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	writing      atomic.Bool
}

// closeGrace bounds how long Close waits to send the close frame.
const closeGrace = time.Second

var _ conn.Transport = (*socket)(nil)

func (s *socket) WriteEnvelope(ctx context.Context, env events.Envelope) error {
	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	s.writing.Store(true)
	defer s.writing.Store(false)
	return s.ws.WriteJSON(env)
}

func (s *socket) ping() error {
	return s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

// Close sends a close frame unless a data write is in flight, in which case
// the peer is not draining and the frame would wait for the write lock.
func (s *socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if !s.writing.Load() {
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeGrace))
		}
		err = s.ws.Close()
	})
	return err
}
