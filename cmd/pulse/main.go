// Command pulse runs the real-time presence, messaging and notification
// service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/pulse/pkg/api"
	"github.com/dmitrymomot/pulse/pkg/auth"
	"github.com/dmitrymomot/pulse/pkg/broadcast"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/fanout"
	"github.com/dmitrymomot/pulse/pkg/gateway"
	"github.com/dmitrymomot/pulse/pkg/httpserver"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/metrics"
	"github.com/dmitrymomot/pulse/pkg/notifications"
	"github.com/dmitrymomot/pulse/pkg/presence"
	"github.com/dmitrymomot/pulse/pkg/ratelimiter"
	"github.com/dmitrymomot/pulse/pkg/receipts"
	"github.com/dmitrymomot/pulse/pkg/registry"
	"github.com/dmitrymomot/pulse/pkg/requestid"
	"github.com/dmitrymomot/pulse/pkg/rooms"
	"github.com/dmitrymomot/pulse/pkg/typing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("pulse stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(s.app.Env, s.app.Service),
		logger.WithConfig(s.log),
		logger.WithContextExtractors(requestid.LoggerExtractor(), logger.ConnectionExtractor()),
	)
	logger.SetAsDefault(log)

	var cl closers
	defer cl.run(log)

	infra, err := connectInfra(ctx, s, log, &cl)
	if err != nil {
		return err
	}

	reg := registry.New(registry.WithShards(s.app.RegistryShards), registry.WithLogger(log))
	ix := rooms.New(
		rooms.WithShards(s.app.RoomShards),
		rooms.WithConversations(infra.persistence),
		rooms.WithLogger(log),
	)
	m := metrics.New(liveSource{reg: reg, rooms: ix})

	stream := broadcast.NewMemory[events.StatusPayload](s.app.PresenceBuffer)
	pres := presence.New(stream, presence.WithLastSeen(infra.persistence), presence.WithLogger(log))
	reg.SetObserver(pres)
	cl.add(func(context.Context) error {
		pres.Stop()
		return stream.Close()
	})

	relayOpts := []presence.RelayOption{presence.WithReplay(pres), presence.WithRelayLogger(log)}
	if s.app.PresenceScope == scopeRooms {
		relayOpts = append(relayOpts, presence.WithRoomScope(ix, infra.persistence))
	}
	relay := presence.NewRelay(reg, relayOpts...)
	go func() {
		if err := relay.Run(ctx, stream); err != nil && !errors.Is(err, context.Canceled) {
			log.LogAttrs(ctx, slog.LevelError, "presence relay stopped", logger.Error(err))
		}
	}()

	channels, err := buildChannels(ctx, s, reg)
	if err != nil {
		return err
	}
	templates, err := loadTemplates(s.app.Templates)
	if err != nil {
		return err
	}
	dispatchOpts := []notifications.Option{
		notifications.WithStore(infra.notifications),
		notifications.WithPresence(reg),
		notifications.WithTemplates(templates),
		notifications.WithObserver(m),
		notifications.WithChannelTimeout(s.app.ChannelTimeout),
		notifications.WithBackgroundTimeout(s.app.BackgroundTimeout),
		notifications.WithLogger(log),
	}
	for _, ch := range channels {
		dispatchOpts = append(dispatchOpts, notifications.WithChannel(ch))
	}
	dispatcher := notifications.NewDispatcher(infra.directory, dispatchOpts...)

	engine := fanout.New(ix, reg, infra.persistence,
		fanout.WithDirectory(infra.directory),
		fanout.WithNotifier(dispatcher),
		fanout.WithObserver(m),
		fanout.WithStripes(s.app.FanoutStripes),
		fanout.WithLogger(log),
	)
	relayTyping := typing.New(ix,
		typing.WithTTL(s.app.TypingTTL),
		typing.WithRate(rate.Limit(s.app.TypingRate), s.app.TypingBurst),
		typing.WithLogger(log),
	)
	prop := receipts.New(infra.persistence, infra.persistence, reg,
		receipts.WithDirectory(infra.directory),
		receipts.WithLogger(log),
	)

	verifier, err := auth.NewJWT(s.auth)
	if err != nil {
		return err
	}
	gw := gateway.New(verifier, reg, ix,
		gateway.WithConfig(s.gateway),
		gateway.WithExtractor(auth.DefaultExtractor(s.auth.QueryParam)),
		gateway.WithTyping(relayTyping),
		gateway.WithReceipts(prop),
		gateway.WithObserver(m),
		gateway.WithLogger(log),
	)

	apiOpts := []api.Option{
		api.WithDispatcher(dispatcher),
		api.WithFanout(engine),
		api.WithReceipts(prop),
		api.WithMessageWriter(infra.persistence),
		api.WithLiveStats(reg, ix),
		api.WithGateway(gw),
		api.WithMetrics(m),
		api.WithChecks(infra.checks...),
		api.WithLogger(log),
	}
	if s.app.ServiceAuth {
		apiOpts = append(apiOpts, api.WithServiceAuth(verifier))
	}
	if s.app.RateLimit {
		limiter, err := ratelimiter.NewBucket(infra.limiterStore, s.limit)
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, api.WithRateLimiter(limiter))
	}
	router := api.New(dispatcher.Store(), apiOpts...).Router()

	srv := httpserver.NewFromConfig(s.http,
		httpserver.WithLogger(log),
		httpserver.WithDrain(gw.Shutdown),
		httpserver.WithDrain(dispatcher.Wait),
	)

	log.LogAttrs(ctx, slog.LevelInfo, "pulse starting",
		slog.String("addr", s.http.Addr),
		slog.String("notification_store", s.app.NotificationStore),
		slog.String("persistence", s.app.Persistence),
		slog.String("directory", s.app.Directory),
		slog.Any("channels", dispatcher.Channels()),
	)
	return srv.Run(ctx, router)
}

// liveSource feeds the scrape-time gauges.
type liveSource struct {
	reg   *registry.Registry
	rooms *rooms.Index
}

func (l liveSource) Connections() int { return l.reg.Count().Connections }
func (l liveSource) OnlineUsers() int { return l.reg.Count().Users }
func (l liveSource) ActiveRooms() int { return l.rooms.ActiveRooms() }
