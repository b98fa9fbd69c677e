package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tourney-auction/go/internal/auction/config"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store/memstore"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store/pgstore"
	"github.com/mcdev12/tourney-auction/go/internal/dbconfig"
	"github.com/rs/zerolog/log"
)

// setupStore returns the configured store. The *sql.DB is nil for the memory driver.
func setupStore(ctx context.Context, cfg *config.Config) (store.Store, *sql.DB, error) {
	if cfg.Store.Driver == config.StoreMemory {
		log.Warn().Msg("using in-memory store; state is lost on restart")
		return memstore.New(clockwork.NewRealClock()), nil, nil
	}

	db, err := dbconfig.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Migrate {
		if err := pgstore.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return pgstore.New(db), db, nil
}
