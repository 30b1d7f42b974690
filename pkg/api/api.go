package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/pulse/pkg/auth"
	"github.com/dmitrymomot/pulse/pkg/clientip"
	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/fanout"
	"github.com/dmitrymomot/pulse/pkg/handler"
	"github.com/dmitrymomot/pulse/pkg/httpserver"
	"github.com/dmitrymomot/pulse/pkg/notifications"
	"github.com/dmitrymomot/pulse/pkg/ratelimiter"
	"github.com/dmitrymomot/pulse/pkg/receipts"
	"github.com/dmitrymomot/pulse/pkg/registry"
	"github.com/dmitrymomot/pulse/pkg/requestid"
)

type Dispatcher interface {
	Send(ctx context.Context, req notifications.Request) (notifications.Notification, error)
}

type Fanout interface {
	Authorize(ctx context.Context, msg community.Message) error
	Dispatch(ctx context.Context, msg community.Message) (fanout.Report, error)
}

type Receipts interface {
	MarkRead(ctx context.Context, messageID, readerID string) (receipts.Result, error)
}

// MessageWriter persists a dispatched message when pulse runs without an
// external persistence service.
type MessageWriter interface {
	SaveMessage(ctx context.Context, msg community.Message) error
}

// LiveStats reports the realtime side of the stats endpoint.
type LiveStats interface {
	Count() registry.Stats
}

type RoomStats interface {
	ActiveRooms() int
}

// Instrumenter wraps the router with request metrics.
type Instrumenter interface {
	Instrument(next http.Handler) http.Handler
	Handler() http.Handler
}

type API struct {
	store      notifications.Store
	dispatcher Dispatcher
	fanout     Fanout
	receipts   Receipts
	messages   MessageWriter
	live       LiveStats
	rooms      RoomStats
	gateway    http.Handler
	metrics    Instrumenter
	limiter    ratelimiter.RateLimiter
	verifier   auth.Verifier
	extract    auth.Extractor
	checks     []httpserver.Check
	log        *slog.Logger
}

type Option func(*API)

func WithDispatcher(d Dispatcher) Option { return func(a *API) { a.dispatcher = d } }
func WithFanout(f Fanout) Option         { return func(a *API) { a.fanout = f } }
func WithReceipts(r Receipts) Option     { return func(a *API) { a.receipts = r } }

func WithMessageWriter(w MessageWriter) Option { return func(a *API) { a.messages = w } }

// WithLiveStats adds connection and room counts to the stats endpoint.
func WithLiveStats(live LiveStats, rooms RoomStats) Option {
	return func(a *API) {
		a.live = live
		a.rooms = rooms
	}
}

// WithGateway mounts the websocket endpoint at /ws.
func WithGateway(h http.Handler) Option { return func(a *API) { a.gateway = h } }

func WithMetrics(m Instrumenter) Option { return func(a *API) { a.metrics = m } }

// WithRateLimiter throttles the write endpoints per caller.
func WithRateLimiter(l ratelimiter.RateLimiter) Option { return func(a *API) { a.limiter = l } }

// WithServiceAuth requires a bearer token on the notification and message
// routes.
func WithServiceAuth(v auth.Verifier) Option {
	return func(a *API) {
		a.verifier = v
		a.extract = auth.Bearer
	}
}

func WithChecks(checks ...httpserver.Check) Option {
	return func(a *API) { a.checks = append(a.checks, checks...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

func New(store notifications.Store, opts ...Option) *API {
	a := &API{store: store, log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router builds the HTTP handler.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware, clientip.Middleware)
	if a.metrics != nil {
		r.Use(a.metrics.Instrument)
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.ErrNotFound).Render(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.HTTPError{Code: http.StatusMethodNotAllowed, Key: "method_not_allowed"}).Render(w, r)
	})

	r.Get("/healthz", httpserver.HealthCheckHandler(a.log))
	r.Get("/readyz", httpserver.HealthCheckHandler(a.log, a.checks...))
	if a.gateway != nil {
		r.Method(http.MethodGet, "/ws", a.gateway)
	}

	r.Group(func(r chi.Router) {
		if a.verifier != nil {
			r.Use(auth.Middleware(a.verifier, a.extract, func(w http.ResponseWriter, r *http.Request, err error) {
				_ = handler.JSONError(handler.ErrUnauthorized).Render(w, r)
			}))
		}
		writes := func(r chi.Router) chi.Router {
			if a.limiter == nil {
				return r
			}
			return r.With(ratelimiter.Middleware(a.limiter,
				ratelimiter.Composite(ratelimiter.ByUser, ratelimiter.ByIP),
				ratelimiter.WithLogger(a.log),
			))
		}

		r.Route("/notifications", func(r chi.Router) {
			writes(r).Post("/send", a.sendNotification())
			r.Get("/user/{id}", a.listNotifications())
			r.Patch("/read/{id}", a.markNotificationRead())
			r.Get("/stats", a.stats())
		})
		r.Route("/messages", func(r chi.Router) {
			writes(r).Post("/dispatch", a.dispatchMessage())
			writes(r).Post("/{id}/read", a.markMessageRead())
		})
	})
	return r
}
