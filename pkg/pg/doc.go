// Package pg opens the optional PostgreSQL connection used by the postgres
// queue backend.
//
// It wraps pgx/v5 connection pooling with startup retries, exposes a readiness
// probe, and applies goose migrations from an embedded filesystem so the
// package that owns a schema also ships it.
//
// Usage:
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//		return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations, "migrations", cfg, slog.Default()); err != nil {
//		return err
//	}
//
//	ready := pg.Healthcheck(pool)
//
// Configuration is read from PG_* environment variables; see Config for names
// and defaults.
package pg
