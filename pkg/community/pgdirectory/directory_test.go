package pgdirectory_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/community/pgdirectory"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/pg"
)

func newDirectory(t *testing.T) *pgdirectory.Directory {
	t.Helper()
	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL is not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: url,
		MaxOpenConns:     4,
		RetryAttempts:    1,
		RetryInterval:    time.Second,
		MigrationsTable:  "pulse_schema_migrations_test",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pg.Migrate(ctx, pool, pgdirectory.Migrations, pgdirectory.MigrationsDir, cfg, logger.Discard()))
	return pgdirectory.New(pool)
}

func TestDirectory(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	_, err := d.Identity(ctx, "ghost-user")
	require.ErrorIs(t, err, community.ErrIdentityNotFound)

	want := community.Identity{
		UserID:      "pg-alice",
		DisplayName: "Alice",
		Addresses:   community.Addresses{Email: "alice@example.com", Phone: "+15550100"},
		Toggles:     map[community.Kind]bool{community.KindEvent: false},
	}
	require.NoError(t, d.Put(ctx, want))

	got, err := d.Identity(ctx, "pg-alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, got.Allows(community.KindEvent))
	assert.True(t, got.Allows(community.KindMessage))

	require.NoError(t, d.SetToggle(ctx, "pg-alice", community.KindMessage, false))
	got, err = d.Identity(ctx, "pg-alice")
	require.NoError(t, err)
	assert.False(t, got.Allows(community.KindMessage))

	require.ErrorIs(t, d.SetToggle(ctx, "ghost-user", community.KindMessage, true), community.ErrIdentityNotFound)
}

func TestMigrations_Embedded(t *testing.T) {
	t.Parallel()

	entries, err := pgdirectory.Migrations.ReadDir(pgdirectory.MigrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_identities.sql", entries[0].Name())
}
