// Package workers runs a Processor on a pool of polling goroutines with retry,
// panic recovery, middleware and metrics.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jrazmi/kanban/sdk/environment"
)

var (
	ErrWorkerShutdown  = errors.New("worker should shutdown")
	ErrPoolShutdown    = errors.New("pool should shutdown")
	ErrNoWorkAvailable = errors.New("no work available")
	ErrAlreadyRunning  = errors.New("pool already running")
)

// Options represents the exportable worker configuration
type Options struct {
	Name         string        `env:"WORKER_NAME" default:"worker"`
	WorkerCount  int           `env:"WORKER_COUNT" default:"2"`
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" default:"5s"`
	IdleInterval time.Duration `env:"WORKER_IDLE_INTERVAL" default:"30s"`
	MaxRetries   int           `env:"WORKER_MAX_RETRIES" default:"3"`
	RetryDelay   time.Duration `env:"WORKER_RETRY_DELAY" default:"1s"`
}

type options struct {
	Options
	middlewares []Middleware
	metrics     Metrics
	logger      *slog.Logger
}

// Option is a function that configures the worker pool options
type Option func(*options)

// WithName sets the worker pool name
func WithName(name string) Option {
	return func(o *options) {
		o.Name = name
	}
}

// WithWorkerCount sets the number of workers
func WithWorkerCount(count int) Option {
	return func(o *options) {
		o.WorkerCount = count
	}
}

// WithPollInterval sets how often to poll while work is flowing
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		o.PollInterval = interval
	}
}

// WithIdleInterval sets how long to wait when no work is available
func WithIdleInterval(interval time.Duration) Option {
	return func(o *options) {
		o.IdleInterval = interval
	}
}

// WithMaxRetries sets the maximum number of process attempts
func WithMaxRetries(maxRetries int) Option {
	return func(o *options) {
		o.MaxRetries = maxRetries
	}
}

// WithRetryDelay sets the first retry delay; later retries double it.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		o.RetryDelay = d
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMiddleware appends middleware; the first added is outermost.
func WithMiddleware(middlewares ...Middleware) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, middlewares...)
	}
}

// WithMetrics sets a custom metrics collector
func WithMetrics(metrics Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// Pool polls a Processor from a fixed number of goroutines.
type Pool[T Task] struct {
	processor Processor[T]
	cfg       Options
	log       *slog.Logger
	metrics   Metrics

	workFunc         WorkFunc
	preProcessHooks  []PreProcessHook[T]
	postProcessHooks []PostProcessHook[T]

	mu      sync.Mutex
	running bool
}

// NewFromEnv creates a pool from PREFIX_WORKER_* variables.
func NewFromEnv[T Task](prefix string, processor Processor[T], opts ...Option) (*Pool[T], error) {
	var cfg Options
	if err := environment.ParseEnvTags(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing worker config: %w", err)
	}
	return newPool(processor, cfg, opts...), nil
}

// New creates a pool with default intervals.
func New[T Task](name string, processor Processor[T], opts ...Option) *Pool[T] {
	cfg := Options{
		Name:         name,
		WorkerCount:  1,
		PollInterval: time.Second,
		IdleInterval: 30 * time.Second,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
	return newPool(processor, cfg, opts...)
}

func newPool[T Task](processor Processor[T], cfg Options, opts ...Option) *Pool[T] {
	o := &options{Options: cfg}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = NewNoOpMetrics()
	}
	if o.WorkerCount <= 0 {
		o.WorkerCount = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 1
	}

	wp := &Pool[T]{
		processor: processor,
		cfg:       o.Options,
		log:       o.logger,
		metrics:   o.metrics,
	}

	wp.workFunc = wp.work
	for i := len(o.middlewares) - 1; i >= 0; i-- {
		wp.workFunc = o.middlewares[i](wp.workFunc)
	}

	return wp
}

// AddPreProcessHooks registers hooks run between Checkout and Process.
func (wp *Pool[T]) AddPreProcessHooks(hooks ...PreProcessHook[T]) {
	wp.preProcessHooks = append(wp.preProcessHooks, hooks...)
}

// AddPostProcessHooks registers hooks run between Process and Complete/Fail.
func (wp *Pool[T]) AddPostProcessHooks(hooks ...PostProcessHook[T]) {
	wp.postProcessHooks = append(wp.postProcessHooks, hooks...)
}

// Metrics returns a snapshot of the pool's counters.
func (wp *Pool[T]) Metrics() MetricsSnapshot {
	return wp.metrics.GetSnapshot()
}

// Run starts the workers and blocks until ctx is done or every worker has
// exited. Workers that asked for a pool shutdown are reported in the error.
func (wp *Pool[T]) Run(ctx context.Context) error {
	wp.mu.Lock()
	if wp.running {
		wp.mu.Unlock()
		return ErrAlreadyRunning
	}
	wp.running = true
	wp.mu.Unlock()

	defer func() {
		wp.mu.Lock()
		wp.running = false
		wp.mu.Unlock()
	}()

	start := time.Now()
	wp.log.InfoContext(ctx, "starting worker pool",
		"name", wp.cfg.Name,
		"worker_count", wp.cfg.WorkerCount,
		"poll_interval", wp.cfg.PollInterval,
		"idle_interval", wp.cfg.IdleInterval)
	wp.metrics.Start(ctx, wp.cfg.Name)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		critical []error
	)
	for i := range wp.cfg.WorkerCount {
		workerID := fmt.Sprintf("%s-worker-%d", wp.cfg.Name, i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := wp.worker(ctx, workerID); err != nil {
				mu.Lock()
				critical = append(critical, err)
				mu.Unlock()
				cancel()
			}
		}()
	}
	wg.Wait()

	wp.metrics.Stop(ctx)
	wp.log.InfoContext(context.WithoutCancel(ctx), "worker pool stopped",
		"name", wp.cfg.Name,
		"total_runtime", time.Since(start))

	return errors.Join(critical...)
}

// Drain runs work cycles on the calling goroutine until no work is
// available, and returns how many cycles processed a task. Task failures are
// counted and logged, not returned.
func (wp *Pool[T]) Drain(ctx context.Context) (int, error) {
	workerID := wp.cfg.Name + "-drain"

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		err := wp.workWithPanicRecovery(ctx, workerID)
		switch {
		case err == nil:
			processed++
		case errors.Is(err, ErrNoWorkAvailable):
			return processed, nil
		case errors.Is(err, ErrWorkerShutdown), errors.Is(err, ErrPoolShutdown):
			return processed, err
		default:
			processed++
		}
	}
}

// worker polls until ctx is done. It returns an error only when the work
// function asks for a pool shutdown.
func (wp *Pool[T]) worker(ctx context.Context, workerID string) error {
	wp.metrics.RecordWorkerStarted()
	defer wp.metrics.RecordWorkerStopped()

	wp.log.InfoContext(ctx, "worker started", "worker_id", workerID, "pool", wp.cfg.Name)
	defer wp.log.InfoContext(context.WithoutCancel(ctx), "worker stopped", "worker_id", workerID, "pool", wp.cfg.Name)

	// Poll immediately on start, then adapt between active and idle intervals.
	current := time.Millisecond
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			err := wp.workWithPanicRecovery(ctx, workerID)

			next := wp.cfg.PollInterval
			switch {
			case err == nil:
			case errors.Is(err, ErrWorkerShutdown):
				wp.log.InfoContext(ctx, "worker shutting down as requested", "worker_id", workerID)
				return nil
			case errors.Is(err, ErrPoolShutdown):
				wp.log.ErrorContext(ctx, "worker requesting pool shutdown", "worker_id", workerID, "error", err)
				return fmt.Errorf("worker %s: %w", workerID, err)
			case errors.Is(err, ErrNoWorkAvailable):
				next = wp.cfg.IdleInterval
			default:
				wp.log.ErrorContext(ctx, "task processing error", "worker_id", workerID, "error", err)
			}

			if next != current {
				current = next
				ticker.Reset(next)
			}
		}
	}
}

func (wp *Pool[T]) workWithPanicRecovery(ctx context.Context, workerID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			wp.log.ErrorContext(ctx, "panic recovered in worker",
				"worker_id", workerID,
				"panic", r,
				"stack_trace", string(debug.Stack()))
			wp.metrics.RecordWorkerPanic()
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	return wp.workFunc(ctx, workerID)
}

// work runs Checkout, Process with retries, then Complete or Fail. Panics in
// Process are turned into a task failure.
func (wp *Pool[T]) work(ctx context.Context, workerID string) error {
	task, err := wp.processor.Checkout(ctx, workerID)
	if err != nil {
		wp.metrics.RecordCheckoutError()
		if errors.Is(err, ErrNoWorkAvailable) {
			return err
		}
		return fmt.Errorf("checkout failed: %w", err)
	}
	wp.metrics.RecordTaskCheckedOut()

	var (
		processed  T
		processErr error
		start      = time.Now()
	)

	defer func() {
		if r := recover(); r != nil {
			wp.log.ErrorContext(ctx, "panic recovered in task",
				"worker_id", workerID,
				"task_id", task.GetID(),
				"panic", r,
				"stack_trace", string(debug.Stack()))
			wp.metrics.RecordWorkerPanic()
			processErr = fmt.Errorf("panic: %v", r)
		}

		duration := time.Since(start)

		hookTask := processed
		if processErr != nil {
			hookTask = task
		}
		for _, hook := range wp.postProcessHooks {
			if err := hook(ctx, hookTask, processErr); err != nil {
				wp.log.ErrorContext(ctx, "post-process hook failed", "task_id", task.GetID(), "error", err)
			}
		}

		if processErr != nil {
			wp.metrics.RecordTaskFailed(duration)
			if err := wp.processor.Fail(ctx, task, processErr); err != nil {
				wp.log.ErrorContext(ctx, "failed to mark task as failed", "task_id", task.GetID(), "error", err)
			}
			return
		}

		wp.metrics.RecordTaskCompleted(duration)
		if err := wp.processor.Complete(ctx, processed, int(duration.Milliseconds())); err != nil {
			wp.log.ErrorContext(ctx, "failed to mark task as complete", "task_id", task.GetID(), "error", err)
		}
	}()

	for _, hook := range wp.preProcessHooks {
		if err := hook(ctx, task); err != nil {
			wp.log.ErrorContext(ctx, "pre-process hook failed", "task_id", task.GetID(), "error", err)
		}
	}

	processed, processErr = wp.processWithRetry(ctx, task)
	if processErr != nil {
		return fmt.Errorf("task %s: %w", task.GetID(), processErr)
	}
	return nil
}

func (wp *Pool[T]) processWithRetry(ctx context.Context, task T) (T, error) {
	var (
		lastErr   error
		processed T
	)

	for attempt := 1; attempt <= wp.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			wp.metrics.RecordRetryAttempt()
			delay := wp.cfg.RetryDelay * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return processed, ctx.Err()
			case <-time.After(delay):
			}
		}

		processed, lastErr = wp.processor.Process(ctx, task)
		if lastErr == nil {
			if attempt > 1 {
				wp.metrics.RecordRetrySuccess()
			}
			return processed, nil
		}
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		wp.log.ErrorContext(ctx, "task processing attempt failed",
			"task_id", task.GetID(),
			"attempt", attempt,
			"max_attempts", wp.cfg.MaxRetries,
			"error", lastErr)
	}

	if wp.cfg.MaxRetries > 1 {
		wp.metrics.RecordRetryExhausted()
	}
	return processed, fmt.Errorf("failed after %d attempts: %w", wp.cfg.MaxRetries, lastErr)
}
