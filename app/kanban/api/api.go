// Package api mounts the kanban HTTP surface.
package api

import (
	"context"
	"expvar"
	"net/http"
	"time"

	"github.com/jrazmi/kanban/bridge/repositories/boardsrepobridge"
	"github.com/jrazmi/kanban/bridge/scaffolding/errs"
	"github.com/jrazmi/kanban/core/boardsession"
	"github.com/jrazmi/kanban/infrastructure/web"
	"github.com/jrazmi/kanban/sdk/logger"

	"github.com/jrazmi/kanban/app/kanban/config"
)

// Config holds what the handlers need.
type Config struct {
	Build      string
	APIRoute   string
	Log        *logger.Logger
	Datastores *config.Datastores
	Sessions   *boardsession.Manager
}

type status struct {
	Status string `json:"status"`
	Build  string `json:"build,omitempty"`
}

// AddHandlers registers the probes, expvar and the board routes.
func AddHandlers(h *web.WebHandler, cfg Config) *web.WebHandler {
	h.GET("/health", func(ctx context.Context, r *http.Request) web.Encoder {
		return web.NewJSONResponse(status{Status: "ok", Build: cfg.Build})
	})

	h.GET("/ready", func(ctx context.Context, r *http.Request) web.Encoder {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := cfg.Datastores.StatusCheck(ctx); err != nil {
			cfg.Log.WarnContext(ctx, "readiness", "status", "not ready", "err", err)
			return errs.New(errs.Unavailable, err)
		}
		return web.NewJSONResponse(status{Status: "ready", Build: cfg.Build})
	})

	h.HandleRaw("GET /debug/vars", expvar.Handler())

	api := h.Group(cfg.APIRoute)
	boardsrepobridge.AddHttpRoutes(api, boardsrepobridge.Config{
		Log:        cfg.Log,
		Repository: cfg.Datastores.Boards,
		Sessions:   cfg.Sessions,
	})

	return h
}
