// Package config holds the process level settings and datastore wiring
// shared by the kanban service and its tooling.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo/stores/boardscache"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo/stores/boardsmemstore"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo/stores/boardspgxstore"
	"github.com/jrazmi/kanban/infrastructure/postgresdb"
	"github.com/jrazmi/kanban/infrastructure/redisdb"
	"github.com/jrazmi/kanban/sdk/environment"
	"github.com/jrazmi/kanban/sdk/logger"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Kanban is the process configuration read from PREFIX_* variables.
type Kanban struct {
	Build           string
	StoreDriver     string        `env:"STORE_DRIVER" default:"postgres"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE" default:"false"`
	SweepInterval   time.Duration `env:"SESSION_SWEEP_INTERVAL" default:"1m"`
	RepairEnabled   bool          `env:"REPAIR_ENABLED" default:"true"`
	RepairTimeout   time.Duration `env:"REPAIR_TIMEOUT" default:"1m"`
	MetricsInterval time.Duration `env:"REPAIR_METRICS_INTERVAL" default:"5m"`
}

// Load reads the configuration for prefix.
func Load(prefix, build string) (Kanban, error) {
	cfg := Kanban{Build: build}
	if err := environment.ParseEnvTags(prefix, &cfg); err != nil {
		return Kanban{}, fmt.Errorf("parsing kanban config: %w", err)
	}
	switch cfg.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return Kanban{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	return cfg, nil
}

// Datastores owns the open connections behind the boards repository.
type Datastores struct {
	PG    *postgresdb.Pool
	Redis *redisdb.Client
	Mem   *boardsmemstore.Store

	Boards *boardsrepo.Repository
}

// Open connects the configured store, layering the redis cache on top when
// PREFIX_REDIS_CONNECTION_STRING is set.
func Open(ctx context.Context, log *logger.Logger, prefix string, cfg Kanban) (*Datastores, error) {
	ds := &Datastores{}

	var storer boardsrepo.Storer
	switch cfg.StoreDriver {
	case DriverMemory:
		log.WarnContext(ctx, "startup", "status", "using in-memory store, data is lost on exit")
		ds.Mem = boardsmemstore.NewStore()
		storer = ds.Mem

	default:
		pg, err := postgresdb.NewFromEnv(prefix, postgresdb.WithLogger(log.Logger))
		if err != nil {
			return nil, fmt.Errorf("configuring postgres support: %w", err)
		}
		ds.PG = pg

		if cfg.AutoMigrate {
			if err := postgresdb.Migrate(ctx, pg, log.Logger); err != nil {
				ds.Close()
				return nil, fmt.Errorf("migrating: %w", err)
			}
		}
		storer = boardspgxstore.NewStore(log, pg)
	}

	client, rcfg, err := redisdb.NewFromEnv(ctx, prefix)
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("configuring redis support: %w", err)
	}
	if client != nil {
		log.InfoContext(ctx, "startup", "status", "board cache enabled", "ttl", rcfg.CacheTTL)
		ds.Redis = client
		storer = boardscache.New(storer, client, rcfg.CacheTTL)
	}

	ds.Boards = boardsrepo.NewRepository(log, storer)
	return ds, nil
}

// StatusCheck pings every open connection.
func (ds *Datastores) StatusCheck(ctx context.Context) error {
	if ds.PG != nil {
		if err := postgresdb.StatusCheck(ctx, ds.PG); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if ds.Redis != nil {
		if err := redisdb.StatusCheck(ctx, ds.Redis); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases every open connection.
func (ds *Datastores) Close() {
	if ds.Redis != nil {
		_ = ds.Redis.Close()
	}
	if ds.PG != nil {
		ds.PG.Close()
	}
}
