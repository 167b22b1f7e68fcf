// Package metrics keeps process wide request counters published through
// expvar at /debug/vars.
package metrics

import (
	"context"
	"expvar"
	"runtime"
)

// metrics are published once per process; expvar panics on a duplicate name.
var m = struct {
	goroutines *expvar.Int
	requests   *expvar.Int
	errors     *expvar.Int
	panics     *expvar.Int
	conflicts  *expvar.Int
}{
	goroutines: expvar.NewInt("goroutines"),
	requests:   expvar.NewInt("requests"),
	errors:     expvar.NewInt("errors"),
	panics:     expvar.NewInt("panics"),
	conflicts:  expvar.NewInt("move_conflicts"),
}

type ctxKey int

const key ctxKey = 1

// Set marks ctx as carrying request metrics.
func Set(ctx context.Context) context.Context {
	return context.WithValue(ctx, key, true)
}

func enabled(ctx context.Context) bool {
	v, _ := ctx.Value(key).(bool)
	return v
}

// AddGoroutines samples the goroutine count.
func AddGoroutines(ctx context.Context) int64 {
	if !enabled(ctx) {
		return 0
	}
	g := int64(runtime.NumGoroutine())
	m.goroutines.Set(g)
	return g
}

// AddRequests counts a request and returns the running total.
func AddRequests(ctx context.Context) int64 {
	if !enabled(ctx) {
		return 0
	}
	m.requests.Add(1)
	return m.requests.Value()
}

// AddErrors counts a request that ended in an error.
func AddErrors(ctx context.Context) int64 {
	if !enabled(ctx) {
		return 0
	}
	m.errors.Add(1)
	return m.errors.Value()
}

// AddPanics counts a recovered panic.
func AddPanics(ctx context.Context) int64 {
	if !enabled(ctx) {
		return 0
	}
	m.panics.Add(1)
	return m.panics.Value()
}

// AddConflicts counts a move rejected as in flight or stale.
func AddConflicts(ctx context.Context) int64 {
	if !enabled(ctx) {
		return 0
	}
	m.conflicts.Add(1)
	return m.conflicts.Value()
}
