package mid

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/jrazmi/kanban/bridge/scaffolding/errs"
	"github.com/jrazmi/kanban/bridge/scaffolding/metrics"
	"github.com/jrazmi/kanban/infrastructure/web"
)

// Panics recovers from panics and converts them into an internal error that
// the Errors middleware logs with the stack.
func Panics() web.Middleware {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(ctx context.Context, r *http.Request) (resp web.Encoder) {
			defer func() {
				if rec := recover(); rec != nil {
					metrics.AddPanics(ctx)
					resp = errs.Newf(errs.InternalOnlyLog, "PANIC [%v] TRACE[%s]", rec, string(debug.Stack()))
				}
			}()

			return next(ctx, r)
		}
	}
}
