package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridian-group/econwatch/internal/db"
	"github.com/meridian-group/econwatch/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "econwatch.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		pool, err := db.NewPgxPool(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool.MaxConns, cfg.Store.Pool.MinConns)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(pool), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
