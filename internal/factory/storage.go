package factory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ryosuke1832/remind/internal/config"
	"github.com/ryosuke1832/remind/internal/store"
	storepg "github.com/ryosuke1832/remind/internal/store/postgres"
	storesqlite "github.com/ryosuke1832/remind/internal/store/sqlite"
)

// NewStore returns the document store selected by cfg.DBDriver with its
// schema applied. The returned *sql.DB is owned by the caller.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, *sql.DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		st, db, err := storesqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Debug().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return st, db, nil
	case "postgres":
		db, err := storepg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := storepg.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		log.Debug().Msg("postgres store ready")
		return storepg.NewWithDB(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
