// Package telemetry carries per-request trace ids through a context.
package telemetry

import (
	"context"

	"github.com/google/uuid"
)

type telKey int

const (
	traceIDKey telKey = iota + 1
)

// NoTrace is returned when a context carries no trace id.
const NoTrace = "--------NOTRACE--------"

// Telemetry stamps and reads trace ids.
type Telemetry struct{}

// NewTelemetry creates a new telemetry instance.
func NewTelemetry() Telemetry {
	return Telemetry{}
}

// SetTraceID returns a context carrying a fresh trace id.
func (t Telemetry) SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceIDKey, uuid.NewString())
}

// WithTraceID returns a context carrying the given trace id, used when an
// upstream proxy already assigned one.
func (t Telemetry) WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return t.SetTraceID(ctx)
	}
	return context.WithValue(ctx, traceIDKey, id)
}

// GetTraceID returns the trace id or NoTrace.
func (t Telemetry) GetTraceID(ctx context.Context) string {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return NoTrace
	}
	return v
}

// TraceID is GetTraceID shaped for logger.WithTraceID: it returns "" instead
// of NoTrace.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}
