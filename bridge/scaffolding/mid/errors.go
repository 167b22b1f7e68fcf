package mid

import (
	"context"
	"log/slog"
	"net/http"
	"path"

	"github.com/jrazmi/kanban/bridge/scaffolding/errs"
	"github.com/jrazmi/kanban/infrastructure/web"
	"github.com/jrazmi/kanban/sdk/logger"
)

// Errors logs failed requests and turns every error into an *errs.Error.
// Errors of any other type, and InternalOnlyLog ones, reach the client as a
// bare internal error. Client errors log at warn, server errors at error.
func Errors(log *logger.Logger) web.Middleware {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)
			err := isError(resp)
			if err == nil {
				return resp
			}

			appErr := errs.GetError(err)
			if appErr == nil {
				appErr = errs.Newf(errs.Internal, "internal server error")
			}

			level := slog.LevelWarn
			if appErr.HTTPStatus() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []any{
				"err", err,
				"code", appErr.Code.String(),
				"source_file", path.Base(appErr.FileName),
				"source_func", path.Base(appErr.FuncName),
			}
			if id := r.PathValue("board_id"); id != "" {
				attrs = append(attrs, "board_id", id)
			}
			log.Log(ctx, level, "request failed", attrs...)

			if appErr.Code == errs.InternalOnlyLog {
				return errs.Newf(errs.Internal, "internal server error")
			}
			return appErr
		}
	}
}
