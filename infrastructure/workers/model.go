package workers

import "context"

// Task is a unit of work. Ids only need to be unique among tasks in flight.
type Task interface {
	GetID() string
}

// Processor supplies and handles tasks for a Pool.
type Processor[T Task] interface {
	// Checkout claims the next task. It must be safe for concurrent workers
	// and return ErrNoWorkAvailable when there is nothing to do.
	Checkout(ctx context.Context, workerID string) (T, error)

	// Process does the work. It may be called again for the same task when
	// the pool retries.
	Process(ctx context.Context, task T) (T, error)

	// Complete releases a task that processed successfully.
	Complete(ctx context.Context, task T, processingTimeMS int) error

	// Fail releases a task whose retries were exhausted.
	Fail(ctx context.Context, task T, err error) error
}

// WorkFunc performs one checkout/process/release cycle.
type WorkFunc func(ctx context.Context, workerID string) error

// Middleware wraps a WorkFunc.
type Middleware func(WorkFunc) WorkFunc

// PreProcessHook runs after checkout, before Process.
type PreProcessHook[T Task] func(ctx context.Context, task T) error

// PostProcessHook runs after Process with its error, before Complete or Fail.
type PostProcessHook[T Task] func(ctx context.Context, task T, err error) error
