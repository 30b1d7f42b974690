// Package pg connects to PostgreSQL with pgx/v5 and applies goose
// migrations.
//
// Connect opens a *pgxpool.Pool from PG_* configuration and retries with a
// linear back-off until the database answers a ping or the context ends.
// Migrate runs goose against the same pool, reading migrations from any
// fs.FS so adapters can embed their schema next to their queries.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgdirectory.Migrations, pgdirectory.MigrationsDir, cfg, log); err != nil {
//		return err
//	}
//
// IsNotFoundError and IsDuplicateKeyError classify pgx errors with errors.Is
// and errors.As.
package pg
