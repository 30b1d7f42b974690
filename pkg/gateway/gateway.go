package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/pulse/pkg/auth"
	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/handler"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/receipts"
	"github.com/dmitrymomot/pulse/pkg/registry"
	"github.com/dmitrymomot/pulse/pkg/rooms"
	"github.com/dmitrymomot/pulse/pkg/typing"
)

// Observer receives per-session counters.
type Observer interface {
	InboundEvent(event, outcome string)
	QueueOverflow()
}

// Gateway upgrades authenticated requests and runs their sessions.
type Gateway struct {
	cfg      Config
	verifier auth.Verifier
	extract  auth.Extractor
	registry *registry.Registry
	rooms    *rooms.Index
	typing   *typing.Relay
	receipts *receipts.Propagator
	observer Observer
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

type Option func(*Gateway)

func WithConfig(cfg Config) Option {
	return func(g *Gateway) { g.cfg = cfg }
}

// WithExtractor overrides where the credential is read from.
func WithExtractor(fn auth.Extractor) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.extract = fn
		}
	}
}

func WithTyping(t *typing.Relay) Option {
	return func(g *Gateway) { g.typing = t }
}

func WithReceipts(p *receipts.Propagator) Option {
	return func(g *Gateway) { g.receipts = p }
}

func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

func New(verifier auth.Verifier, reg *registry.Registry, ix *rooms.Index, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:      DefaultConfig(),
		verifier: verifier,
		extract:  auth.DefaultExtractor("token"),
		registry: reg,
		rooms:    ix,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.Contains(g.cfg.AllowedOrigins, u.Host) || slices.Contains(g.cfg.AllowedOrigins, origin)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.Authenticate(r, g.verifier, g.extract)
	if err != nil {
		g.log.LogAttrs(r.Context(), slog.LevelInfo, "handshake rejected",
			slog.String("remote_addr", r.RemoteAddr),
			logger.Error(err),
		)
		_ = handler.JSONError(handler.ErrUnauthorized.WithMessage("invalid or missing credential")).Render(w, r)
		return
	}

	if !g.begin() {
		_ = handler.JSONError(handler.ErrServiceUnavailable.WithMessage(ErrShuttingDown.Error())).Render(w, r)
		return
	}
	defer g.sessions.Done()

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.LogAttrs(r.Context(), slog.LevelWarn, "websocket upgrade failed",
			logger.UserID(userID),
			logger.Error(err),
		)
		return
	}

	g.serve(r.Context(), ws, userID)
}

// begin reserves a session slot unless the gateway is shutting down.
func (g *Gateway) begin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.sessions.Add(1)
	return true
}

func (g *Gateway) isClosing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}

func (g *Gateway) serve(parent context.Context, ws *websocket.Conn, userID string) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	sock := &socket{ws: ws, writeTimeout: g.cfg.WriteTimeout}
	c := conn.New(userID, sock,
		conn.WithQueueSize(g.cfg.QueueSize),
		conn.WithLogger(g.log),
		conn.WithOnOverflow(func(*conn.Conn) {
			if g.observer != nil {
				g.observer.QueueOverflow()
			}
		}),
	)
	ctx = logger.WithConnectionID(ctx, c.ID())

	go func() { _ = c.Run(ctx) }()
	defer g.cleanup(ctx, c)

	if _, err := g.registry.Register(ctx, c); err != nil {
		g.log.LogAttrs(ctx, slog.LevelError, "failed to register connection",
			logger.UserID(userID),
			logger.Error(err),
		)
		return
	}
	if g.isClosing() {
		return
	}
	if _, err := g.rooms.AutoJoin(ctx, c); err != nil {
		// the session stays usable; explicit joins still work
		g.log.LogAttrs(ctx, slog.LevelWarn, "auto-join failed",
			logger.UserID(userID),
			logger.Error(err),
		)
	}

	stats := g.registry.Count()
	_ = c.Send(events.New(events.ConnectionStats, events.StatsPayload{
		ConnectedUsers:      stats.Users,
		ActiveConversations: g.rooms.ActiveRooms(),
	}))

	g.log.LogAttrs(ctx, slog.LevelInfo, "session opened",
		logger.UserID(userID),
		logger.Count(len(c.Rooms())),
	)

	go g.keepalive(c, sock)
	g.readLoop(ctx, ws, c)
}

func (g *Gateway) keepalive(c *conn.Conn, sock *socket) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			if err := sock.ping(); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, c *conn.Conn) {
	ws.SetReadLimit(g.cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(g.cfg.InboundRate), g.cfg.InboundBurst)
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && !c.Closed() {
				g.log.LogAttrs(ctx, slog.LevelDebug, "read failed",
					logger.UserID(c.UserID()),
					logger.Error(err),
				)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))

		var in events.Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
			g.reject(c, "", events.CodeBadRequest, "malformed frame")
			continue
		}
		if !limiter.Allow() {
			g.reject(c, in.Event, events.CodeRateLimited, ErrRateLimited.Error())
			continue
		}
		g.handle(ctx, c, in)
	}
}

// cleanup runs on every exit path. Closing first guarantees no concurrent
// join can re-add the connection while it is being removed.
func (g *Gateway) cleanup(ctx context.Context, c *conn.Conn) {
	_ = c.Close()
	left := g.rooms.RemoveEverywhere(c)
	if g.typing != nil {
		g.typing.Forget(c)
	}
	last := g.registry.Unregister(ctx, c)

	st := c.Stats()
	g.log.LogAttrs(ctx, slog.LevelInfo, "session closed",
		logger.UserID(c.UserID()),
		logger.Count(len(left)),
		slog.Bool("last", last),
		slog.Bool("unhealthy", c.Unhealthy()),
		slog.Uint64("sent", st.Sent),
		slog.Uint64("dropped", st.Dropped),
		logger.Duration(time.Since(c.CreatedAt())),
	)
}

// Shutdown stops admitting sessions, closes every live connection and waits
// for their cleanup to finish or ctx to end.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	for _, c := range g.registry.All() {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		g.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(ErrShuttingDown, ctx.Err())
	}
}
