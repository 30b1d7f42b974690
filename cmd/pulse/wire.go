package main

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/community/mongostore"
	"github.com/dmitrymomot/pulse/pkg/community/pgdirectory"
	"github.com/dmitrymomot/pulse/pkg/config"
	"github.com/dmitrymomot/pulse/pkg/email"
	"github.com/dmitrymomot/pulse/pkg/httpserver"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/mongo"
	"github.com/dmitrymomot/pulse/pkg/notifications"
	"github.com/dmitrymomot/pulse/pkg/pg"
	"github.com/dmitrymomot/pulse/pkg/ratelimiter"
	"github.com/dmitrymomot/pulse/pkg/redis"
	"github.com/dmitrymomot/pulse/pkg/sns"
)

// persistence is the conversation and message collaborator, plus the write
// used by POST /messages/dispatch.
type persistence interface {
	community.ConversationStore
	community.MessageStore
	SaveMessage(ctx context.Context, msg community.Message) error
}

type infra struct {
	persistence   persistence
	directory     community.IdentityDirectory
	notifications notifications.Store
	limiterStore  ratelimiter.Store
	checks        []httpserver.Check
}

// connectInfra opens the configured backends. Every opened client registers
// its release in cl.
func connectInfra(ctx context.Context, s settings, log *slog.Logger, cl *closers) (infra, error) {
	var out infra

	var seed seedFile
	if s.app.SeedFile != "" {
		var err error
		if seed, err = loadSeed(s.app.SeedFile); err != nil {
			return infra{}, err
		}
	}

	switch s.app.Persistence {
	case backendMongo:
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return infra{}, err
		}
		db, err := mongo.NewWithDatabase(ctx, cfg)
		if err != nil {
			return infra{}, err
		}
		cl.add(func(ctx context.Context) error { return db.Client().Disconnect(ctx) })
		store := mongostore.New(db, mongostore.WithLogger(log))
		if err := store.EnsureIndexes(ctx); err != nil {
			return infra{}, err
		}
		for _, c := range seed.conversations(time.Now().UTC()) {
			if err := store.SaveConversation(ctx, c); err != nil {
				return infra{}, err
			}
		}
		out.persistence = store
		out.checks = append(out.checks, httpserver.Check{Name: "mongo", Fn: mongo.Healthcheck(db.Client())})
	default:
		mem := community.NewMemory()
		for _, c := range seed.conversations(time.Now().UTC()) {
			mem.PutConversation(c)
		}
		out.persistence = mem
	}

	var directory community.IdentityDirectory
	switch s.app.Directory {
	case backendPostgres:
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return infra{}, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return infra{}, err
		}
		cl.add(func(context.Context) error { pool.Close(); return nil })
		if err := pg.Migrate(ctx, pool, pgdirectory.Migrations, pgdirectory.MigrationsDir, cfg, log); err != nil {
			return infra{}, err
		}
		dir := pgdirectory.New(pool)
		for _, id := range seed.identities() {
			if err := dir.Put(ctx, id); err != nil {
				return infra{}, err
			}
		}
		directory = dir
		out.checks = append(out.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
	default:
		directory = community.NewMemoryDirectory(seed.identities()...)
	}
	out.directory = community.NewCachedDirectory(directory, s.app.DirectoryCacheSize, s.app.DirectoryCacheTTL)

	if s.app.NotificationStore == backendRedis {
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return infra{}, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return infra{}, err
		}
		cl.add(func(context.Context) error { return client.Close() })
		out.notifications = notifications.NewRedisStore(client, s.app.StoreCapacity, notifications.WithKeyPrefix(cfg.KeyPrefix))
		out.limiterStore = ratelimiter.NewRedisStore(client, "")
		out.checks = append(out.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	} else {
		out.notifications = notifications.NewMemoryStore(s.app.StoreCapacity)
		mem := ratelimiter.NewMemoryStore()
		cl.add(func(context.Context) error { mem.Close(); return nil })
		out.limiterStore = mem
	}

	return out, nil
}

// buildChannels returns the enabled delivery channels. Realtime is always
// on; the dispatcher orders them by notifications.CascadeOrder.
func buildChannels(ctx context.Context, s settings, conns notifications.ConnectionLookup) ([]notifications.Channel, error) {
	channels := []notifications.Channel{notifications.NewRealtime(conns)}
	if s.app.EnableSNS {
		client, err := sns.New(ctx, s.sns)
		if err != nil {
			return nil, err
		}
		channels = append(channels, notifications.NewPush(client), notifications.NewSMS(client))
	}
	if s.app.EnableEmail {
		sender, err := email.New(s.email)
		if err != nil {
			return nil, err
		}
		channels = append(channels, notifications.NewEmail(sender, s.app.EmailFooter))
	}
	return channels, nil
}

func loadTemplates(path string) (*notifications.Templates, error) {
	if path == "" {
		return notifications.DefaultTemplates(), nil
	}
	return notifications.LoadTemplates(path)
}

// closers releases resources in reverse order of acquisition.
type closers struct {
	fns []func(context.Context) error
}

func (c *closers) add(fn func(context.Context) error) {
	c.fns = append(c.fns, fn)
}

func (c *closers) run(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	for _, fn := range slices.Backward(c.fns) {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "failed to release resources", logger.Error(err))
	}
}
