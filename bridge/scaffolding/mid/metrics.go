package mid

import (
	"context"
	"net/http"

	"github.com/jrazmi/kanban/bridge/scaffolding/metrics"
	"github.com/jrazmi/kanban/infrastructure/web"
)

// goroutineSample is how many requests pass between goroutine samples.
const goroutineSample = 100

// Metrics counts requests, server failures and move conflicts. Conflicts are
// tracked apart from errors: they are the normal outcome of two people
// dragging on the same board.
func Metrics() web.Middleware {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(ctx context.Context, r *http.Request) web.Encoder {
			ctx = metrics.Set(ctx)
			resp := next(ctx, r)

			if metrics.AddRequests(ctx)%goroutineSample == 0 {
				metrics.AddGoroutines(ctx)
			}

			switch status := web.StatusOf(resp); {
			case status == http.StatusConflict:
				metrics.AddConflicts(ctx)
			case status >= http.StatusInternalServerError:
				metrics.AddErrors(ctx)
			}
			return resp
		}
	}
}
