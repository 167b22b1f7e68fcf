// Package boardsrepobridge exposes board reads and writes over HTTP.
package boardsrepobridge

import (
	"slices"

	"github.com/google/uuid"
	"github.com/jrazmi/kanban/bridge/scaffolding/mid"
	"github.com/jrazmi/kanban/core/boardsession"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
	"github.com/jrazmi/kanban/infrastructure/web"
	"github.com/jrazmi/kanban/sdk/logger"
)

// Config holds configuration for the boards bridge
type Config struct {
	Log        *logger.Logger
	Repository *boardsrepo.Repository
	Sessions   *boardsession.Manager
	Middleware []web.Middleware

	// NewID generates task ids. Defaults to random UUIDs.
	NewID func() string
}

// AddHttpRoutes registers the board routes on group. Every route resolves
// the caller's team membership first.
func AddHttpRoutes(group *web.RouteGroup, cfg Config) {
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	b := newBridge(cfg)

	boards := group.Group("/boards/{board_id}", slices.Concat(cfg.Middleware, []web.Middleware{mid.Membership(cfg.Repository)})...)
	boards.GET("", b.httpGetBoard)
	boards.POST("/moves", b.httpMoveTask)
	boards.POST("/column-moves", b.httpMoveColumn, mid.RequireAdmin())
	boards.POST("/tasks", b.httpCreateTask)
	boards.PATCH("/tasks/{task_id}", b.httpUpdateTask)
	boards.DELETE("/tasks/{task_id}", b.httpDeleteTask)
}
