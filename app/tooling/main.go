package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jrazmi/kanban/app/kanban/config"
	"github.com/jrazmi/kanban/app/tooling/commands"
	"github.com/jrazmi/kanban/sdk/environment"
	"github.com/jrazmi/kanban/sdk/logger"
)

var build = "develop"
var appName = "TOOLING"

// withDatastores opens the configured store for the duration of fn.
func withDatastores(cmd *cobra.Command, fn func(ctx context.Context, log *logger.Logger, ds *config.Datastores) error) error {
	ctx := cmd.Context()

	log, err := logger.NewFromEnv(appName, logger.WithService("kanban-tooling"))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	log.InfoContext(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "command", cmd.Name())

	cfg, err := config.Load(appName, build)
	if err != nil {
		return err
	}
	// Migrations are always explicit here.
	cfg.AutoMigrate = false

	ds, err := config.Open(ctx, log, appName, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.InfoContext(ctx, "shutdown", "status", "closing datastores")
		ds.Close()
	}()

	return fn(ctx, log, ds)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatastores(cmd, commands.Migrate)
		},
	}
}

func seedCmd() *cobra.Command {
	var boards []string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Give boards the default columns",
		Long: `Seed creates the starter columns on boards that have none.
Boards that already have columns are left alone.

Examples:
  tooling seed --board 7f9c...
  tooling seed --board b1 --board b2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatastores(cmd, func(ctx context.Context, log *logger.Logger, ds *config.Datastores) error {
				return commands.Seed(ctx, log, ds, boards)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&boards, "board", "b", nil, "board id to seed (repeatable)")
	return cmd
}

func repairCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Renormalize boards with duplicate or gapped task positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatastores(cmd, func(ctx context.Context, log *logger.Logger, ds *config.Datastores) error {
				return commands.Repair(ctx, log, ds, appName, once)
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "repair the boards currently corrupt and exit")
	return cmd
}

func main() {
	_ = environment.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:          "tooling",
		Short:        "Kanban maintenance commands",
		Version:      build,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(repairCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
