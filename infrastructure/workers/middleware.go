package workers

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ConsecutiveErrorShutdown stops a worker after more than count failures in
// a row. Idle polls neither count nor reset.
func ConsecutiveErrorShutdown(count int) Middleware {
	errorCounts := make(map[string]int)
	var mu sync.Mutex

	return func(next WorkFunc) WorkFunc {
		return func(ctx context.Context, workerID string) error {
			err := next(ctx, workerID)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				errorCounts[workerID] = 0
			case errors.Is(err, ErrNoWorkAvailable):
			default:
				errorCounts[workerID]++
				if errorCounts[workerID] > count {
					return ErrWorkerShutdown
				}
			}
			return err
		}
	}
}

// Timeout bounds each work cycle.
func Timeout(d time.Duration) Middleware {
	return func(next WorkFunc) WorkFunc {
		return func(ctx context.Context, workerID string) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, workerID)
		}
	}
}
