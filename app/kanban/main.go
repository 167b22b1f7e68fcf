package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jrazmi/kanban/app/kanban/api"
	"github.com/jrazmi/kanban/app/kanban/config"
	"github.com/jrazmi/kanban/bridge/scaffolding/mid"
	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/boardsession"
	"github.com/jrazmi/kanban/core/repair"
	"github.com/jrazmi/kanban/infrastructure/web"
	"github.com/jrazmi/kanban/infrastructure/workers"
	"github.com/jrazmi/kanban/sdk/environment"
	"github.com/jrazmi/kanban/sdk/logger"
	"github.com/jrazmi/kanban/sdk/telemetry"
)

var build = "develop"
var appName = "KANBAN"

func main() {
	_ = environment.LoadEnv()
	ctx := context.Background()

	log, err := logger.NewFromEnv(appName,
		logger.WithService("kanban"),
		logger.WithTraceID(telemetry.TraceID),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	if err := run(ctx, log); err != nil {
		log.ErrorContext(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	log.InfoContext(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	cfg, err := config.Load(appName, build)
	if err != nil {
		return err
	}

	// :*: START DATABASES :*:
	ds, err := config.Open(ctx, log, appName, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.InfoContext(ctx, "shutdown", "status", "closing datastores")
		ds.Close()
	}()

	if ds.Mem != nil {
		if err := seedDemo(ctx, ds); err != nil {
			return fmt.Errorf("seeding demo board: %w", err)
		}
	}
	// END DATABASES //

	sessCfg, err := boardsession.ConfigFromEnv(appName)
	if err != nil {
		return err
	}
	sessions := boardsession.NewManager(log, ds.Boards, sessCfg)

	srv, err := web.NewServerFromEnv(appName,
		web.WithErrorLog(logger.NewStdLogger(log, slog.LevelError)),
	)
	if err != nil {
		return fmt.Errorf("webserver: %w", err)
	}

	handler, err := webHandler(log, cfg, ds, sessions, srv.Config.APIRoute)
	if err != nil {
		return err
	}
	srv.Handler = handler

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sessions.Run(gctx, cfg.SweepInterval)
		return nil
	})

	if cfg.RepairEnabled {
		pool, err := newRepairPool(log, ds, sessions, cfg)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := pool.Run(gctx); err != nil {
				return fmt.Errorf("repair pool stopped: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		log.InfoContext(gctx, "startup", "status", "api router started", "host", srv.Addr)
		return srv.Run(gctx, nil)
	})

	<-gctx.Done()
	log.InfoContext(ctx, "shutdown", "status", "shutdown started", "cause", context.Cause(gctx))
	defer log.InfoContext(ctx, "shutdown", "status", "shutdown complete")

	return g.Wait()
}

func webHandler(log *logger.Logger, cfg config.Kanban, ds *config.Datastores, sessions *boardsession.Manager, apiRoute string) (http.Handler, error) {
	h, err := web.NewWebHandlerFromEnv(appName,
		web.WithLogging(log.Logger),
		web.WithTelemetry(telemetry.NewTelemetry()),
		web.WithGlobalMiddleware(
			mid.Logger(log),
			mid.Errors(log),
			mid.Metrics(),
			mid.Panics(),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("web handler: %w", err)
	}

	api.AddHandlers(h, api.Config{
		Build:      cfg.Build,
		APIRoute:   apiRoute,
		Log:        log,
		Datastores: ds,
		Sessions:   sessions,
	})
	return h, nil
}

func newRepairPool(log *logger.Logger, ds *config.Datastores, sessions *boardsession.Manager, cfg config.Kanban) (*workers.Pool[repair.Job], error) {
	var opts repair.Options
	if err := environment.ParseEnvTags(appName, &opts); err != nil {
		return nil, fmt.Errorf("parsing repair config: %w", err)
	}

	proc := repair.NewProcessor(log, ds.Boards, opts)
	proc.OnRepaired = func(ctx context.Context, boardID string) {
		sessions.Discard(boardID)
	}

	pool, err := workers.NewFromEnv[repair.Job](appName+"_REPAIR", proc,
		workers.WithName("board-repair"),
		workers.WithLogger(log.Logger),
		workers.WithMetrics(workers.NewLoggerMetrics(log.Logger, cfg.MetricsInterval)),
		workers.WithMiddleware(workers.Timeout(cfg.RepairTimeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("repair pool: %w", err)
	}
	pool.AddPostProcessHooks(workers.LogEndHook[repair.Job](log.Logger))
	return pool, nil
}

// seedDemo gives the in-memory store one board so the API is usable
// without a database. The demo user administers the demo team.
func seedDemo(ctx context.Context, ds *config.Datastores) error {
	ds.Mem.AddBoard(board.Board{ID: "demo", TeamID: "demo", Name: "Demo"})
	ds.Mem.AddMember(board.TeamMembership{UserID: "demo", TeamID: "demo", Role: board.RoleAdmin})

	_, err := ds.Boards.SeedDefaultColumns(ctx, "demo", uuid.NewString)
	return err
}
