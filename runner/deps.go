package runner

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/config"
	"github.com/lucasrcezimbra/missas/entities"
	"github.com/lucasrcezimbra/missas/geo"
	"github.com/lucasrcezimbra/missas/gmaps"
	"github.com/lucasrcezimbra/missas/postgres"
	"github.com/lucasrcezimbra/missas/resolver"
	"github.com/lucasrcezimbra/missas/sqlite"
)

// Deps bundles the services shared by every run mode. Concurrency and
// RadiusKM carry the dynamic config values so the flag defaults can be
// overridden per deployment.
type Deps struct {
	Store       entities.Store
	Config      *config.Service
	Resolver    *resolver.Service
	Concurrency int
	RadiusKM    float64

	db          *sql.DB
	sqliteStore *sqlite.Store
}

// NewDeps opens the store (PostgreSQL when a dsn is set, sqlite otherwise),
// migrates it, and wires the resolution service on top.
func NewDeps(ctx context.Context, cfg *Config, logger *zap.Logger) (*Deps, error) {
	deps := Deps{}

	if cfg.Dsn != "" {
		migrator := postgres.NewMigrationRunner(cfg.Dsn, logger)
		if err := migrator.Run(); err != nil {
			return nil, err
		}

		db, err := postgres.Open(cfg.Dsn)
		if err != nil {
			return nil, err
		}

		store, err := postgres.New(db)
		if err != nil {
			_ = db.Close()

			return nil, err
		}

		deps.db = db
		deps.Store = store
	} else {
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}

		if err := store.AutoMigrate(ctx); err != nil {
			_ = store.Close()

			return nil, err
		}

		deps.sqliteStore = store
		deps.Store = store
	}

	deps.Config = config.New(deps.db)

	apiKey, err := deps.Config.GetString(ctx, config.KeyMapsAPIKey, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read maps api key: %w", err)
	}

	client, err := gmaps.NewClient(apiKey, logger)
	if err != nil {
		return nil, err
	}

	pendingTTL, err := deps.Config.GetDuration(ctx, config.KeyPendingTTL, cfg.PendingTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending ttl: %w", err)
	}

	deps.Concurrency, err = deps.Config.GetInt(ctx, config.KeyConcurrency, cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to read concurrency: %w", err)
	}

	deps.RadiusKM, err = deps.Config.GetFloat(ctx, config.KeyDefaultRadiusKM, geo.DefaultRadiusKM)
	if err != nil {
		return nil, fmt.Errorf("failed to read default radius: %w", err)
	}

	res := resolver.New(client, gmaps.NewUnshortener(logger), logger)
	deps.Resolver = resolver.NewService(deps.Store, res, resolver.NewPendingStore(pendingTTL), logger)

	return &deps, nil
}

func (d *Deps) Close() error {
	var err error

	if d.db != nil {
		err = multierr.Append(err, d.db.Close())
	}

	if d.sqliteStore != nil {
		err = multierr.Append(err, d.sqliteStore.Close())
	}

	return err
}
