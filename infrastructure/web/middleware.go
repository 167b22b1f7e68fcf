package web

import (
	"context"
	"net/http"
	"slices"
)

// buildHandlerChain wraps handler so the global chain runs first, then the
// given middleware in order.
func (wh *WebHandler) buildHandlerChain(handler HandlerFunc, middleware ...Middleware) HandlerFunc {
	allMiddleware := slices.Concat(wh.globalMiddleware, middleware)

	final := handler
	for i := len(allMiddleware) - 1; i >= 0; i-- {
		final = allMiddleware[i](final)
	}

	return final
}

// corsMiddleware answers preflight requests and stamps CORS headers on every
// response for allowed origins.
func (wh *WebHandler) corsMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, r *http.Request) Encoder {
			w := GetWriter(ctx)
			if w == nil {
				return NewError("internal server error: response writer not available")
			}

			origin := r.Header.Get("Origin")
			if origin != "" && slices.ContainsFunc(wh.corsOrigins, func(allowed string) bool {
				return allowed == "*" || allowed == origin
			}) {
				// Credentials rule out a literal "*", so the origin is echoed.
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", wh.allowedMethods(r))
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Authorization, X-User-ID, X-Trace-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				return NewNoResponse()
			}

			return next(ctx, r)
		}
	}
}
