// Package commands implements the kanban tooling subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrazmi/kanban/app/kanban/config"
	"github.com/jrazmi/kanban/core/repair"
	"github.com/jrazmi/kanban/infrastructure/postgresdb"
	"github.com/jrazmi/kanban/infrastructure/workers"
	"github.com/jrazmi/kanban/sdk/environment"
	"github.com/jrazmi/kanban/sdk/logger"
)

// ErrNoDatabase is returned by commands that need postgres when the memory
// driver is configured.
var ErrNoDatabase = errors.New("command requires the postgres store driver")

// Migrate creates the schema in the database.
func Migrate(ctx context.Context, log *logger.Logger, ds *config.Datastores) error {
	if ds.PG == nil {
		return ErrNoDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	log.InfoContext(ctx, "migration started", "step", "checking database status")
	if err := postgresdb.StatusCheck(ctx, ds.PG); err != nil {
		return fmt.Errorf("database status check failed: %w", err)
	}

	if err := postgresdb.Migrate(ctx, ds.PG, log.Logger); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	log.InfoContext(ctx, "migrations completed successfully")
	return nil
}

// Seed gives each board the default columns when it has none.
func Seed(ctx context.Context, log *logger.Logger, ds *config.Datastores, boardIDs []string) error {
	if len(boardIDs) == 0 {
		return errors.New("at least one --board is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for _, id := range boardIDs {
		if _, err := ds.Boards.GetBoard(ctx, id); err != nil {
			return fmt.Errorf("board %s: %w", id, err)
		}
		cols, err := ds.Boards.SeedDefaultColumns(ctx, id, uuid.NewString)
		if err != nil {
			return fmt.Errorf("seed board %s: %w", id, err)
		}
		log.InfoContext(ctx, "seeding complete", "board_id", id, "columns", len(cols))
	}
	return nil
}

// Repair renormalizes corrupt boards. With once set it drains every board
// currently reported corrupt and returns; otherwise it polls until ctx ends.
func Repair(ctx context.Context, log *logger.Logger, ds *config.Datastores, prefix string, once bool) error {
	var opts repair.Options
	if err := environment.ParseEnvTags(prefix, &opts); err != nil {
		return fmt.Errorf("parsing repair config: %w", err)
	}

	metrics := workers.NewInMemoryMetrics()
	proc := repair.NewProcessor(log, ds.Boards, opts)
	pool, err := workers.NewFromEnv[repair.Job](prefix+"_REPAIR", proc,
		workers.WithName("board-repair"),
		workers.WithLogger(log.Logger),
		workers.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("repair pool: %w", err)
	}
	pool.AddPreProcessHooks(workers.LogStartHook[repair.Job](log.Logger))
	pool.AddPostProcessHooks(workers.LogEndHook[repair.Job](log.Logger))

	if !once {
		err := pool.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	n, err := pool.Drain(ctx)
	snap := metrics.GetSnapshot()
	log.InfoContext(ctx, "repair complete",
		"boards", n,
		"completed", snap.TasksCompleted,
		"failed", snap.TasksFailed,
	)
	return err
}
