package workers

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects pool orchestration counters.
type Metrics interface {
	RecordWorkerStarted()
	RecordWorkerStopped()
	RecordWorkerPanic()

	RecordTaskCheckedOut()
	RecordTaskCompleted(duration time.Duration)
	RecordTaskFailed(duration time.Duration)
	RecordCheckoutError()

	RecordRetryAttempt()
	RecordRetrySuccess()
	RecordRetryExhausted()

	GetSnapshot() MetricsSnapshot

	Start(ctx context.Context, poolName string)
	Stop(ctx context.Context)
}

// MetricsSnapshot is a point-in-time view of pool metrics.
type MetricsSnapshot struct {
	WorkersActive int64 `json:"workers_active"`
	WorkerPanics  int64 `json:"worker_panics"`

	TasksCheckedOut int64 `json:"tasks_checked_out"`
	TasksCompleted  int64 `json:"tasks_completed"`
	TasksFailed     int64 `json:"tasks_failed"`
	CheckoutErrors  int64 `json:"checkout_errors"`

	RetryAttempts    int64 `json:"retry_attempts"`
	RetrySuccesses   int64 `json:"retry_successes"`
	RetriesExhausted int64 `json:"retries_exhausted"`

	AverageDuration time.Duration `json:"average_duration_ns"`
	MinDuration     time.Duration `json:"min_duration_ns"`
	MaxDuration     time.Duration `json:"max_duration_ns"`
	ErrorRate       float64       `json:"error_rate"`

	CollectedAt time.Time     `json:"collected_at"`
	Uptime      time.Duration `json:"uptime_ns"`
}

// ============================================================================
// NoOpMetrics

type NoOpMetrics struct{}

func NewNoOpMetrics() Metrics {
	return NoOpMetrics{}
}

func (NoOpMetrics) RecordWorkerStarted() {}
func (NoOpMetrics) RecordWorkerStopped() {}
func (NoOpMetrics) RecordWorkerPanic() {}
func (NoOpMetrics) RecordTaskCheckedOut() {}
func (NoOpMetrics) RecordTaskCompleted(time.Duration) {}
func (NoOpMetrics) RecordTaskFailed(time.Duration) {}
func (NoOpMetrics) RecordCheckoutError() {}
func (NoOpMetrics) RecordRetryAttempt() {}
func (NoOpMetrics) RecordRetrySuccess() {}
func (NoOpMetrics) RecordRetryExhausted() {}
func (NoOpMetrics) GetSnapshot() MetricsSnapshot { return MetricsSnapshot{} }
func (NoOpMetrics) Start(context.Context, string) {}
func (NoOpMetrics) Stop(context.Context) {}

// ============================================================================
// InMemoryMetrics

type InMemoryMetrics struct {
	poolName  string
	startTime time.Time

	workersStarted atomic.Int64
	workersStopped atomic.Int64
	workerPanics   atomic.Int64

	tasksCheckedOut atomic.Int64
	tasksCompleted  atomic.Int64
	tasksFailed     atomic.Int64
	checkoutErrors  atomic.Int64

	retryAttempts    atomic.Int64
	retrySuccesses   atomic.Int64
	retriesExhausted atomic.Int64

	totalDurationNs atomic.Int64

	mu          sync.RWMutex
	minDuration time.Duration
	maxDuration time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		startTime:   time.Now(),
		minDuration: math.MaxInt64,
	}
}

func (m *InMemoryMetrics) Start(ctx context.Context, poolName string) {
	m.poolName = poolName
	m.startTime = time.Now()
}

func (m *InMemoryMetrics) Stop(ctx context.Context) {}

func (m *InMemoryMetrics) RecordWorkerStarted()  { m.workersStarted.Add(1) }
func (m *InMemoryMetrics) RecordWorkerStopped()  { m.workersStopped.Add(1) }
func (m *InMemoryMetrics) RecordWorkerPanic()    { m.workerPanics.Add(1) }
func (m *InMemoryMetrics) RecordTaskCheckedOut() { m.tasksCheckedOut.Add(1) }
func (m *InMemoryMetrics) RecordCheckoutError()  { m.checkoutErrors.Add(1) }
func (m *InMemoryMetrics) RecordRetryAttempt()   { m.retryAttempts.Add(1) }
func (m *InMemoryMetrics) RecordRetrySuccess()   { m.retrySuccesses.Add(1) }
func (m *InMemoryMetrics) RecordRetryExhausted() { m.retriesExhausted.Add(1) }

func (m *InMemoryMetrics) RecordTaskCompleted(duration time.Duration) {
	m.tasksCompleted.Add(1)
	m.recordDuration(duration)
}

func (m *InMemoryMetrics) RecordTaskFailed(duration time.Duration) {
	m.tasksFailed.Add(1)
	m.recordDuration(duration)
}

func (m *InMemoryMetrics) recordDuration(d time.Duration) {
	m.totalDurationNs.Add(int64(d))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.minDuration = min(m.minDuration, d)
	m.maxDuration = max(m.maxDuration, d)
}

func (m *InMemoryMetrics) GetSnapshot() MetricsSnapshot {
	now := time.Now()

	completed := m.tasksCompleted.Load()
	failed := m.tasksFailed.Load()
	total := completed + failed

	m.mu.RLock()
	minDur, maxDur := m.minDuration, m.maxDuration
	m.mu.RUnlock()
	if minDur == math.MaxInt64 {
		minDur = 0
	}

	var (
		avg       time.Duration
		errorRate float64
	)
	if total > 0 {
		avg = time.Duration(m.totalDurationNs.Load() / total)
		errorRate = float64(failed) / float64(total) * 100
	}

	return MetricsSnapshot{
		WorkersActive: m.workersStarted.Load() - m.workersStopped.Load(),
		WorkerPanics:  m.workerPanics.Load(),

		TasksCheckedOut: m.tasksCheckedOut.Load(),
		TasksCompleted:  completed,
		TasksFailed:     failed,
		CheckoutErrors:  m.checkoutErrors.Load(),

		RetryAttempts:    m.retryAttempts.Load(),
		RetrySuccesses:   m.retrySuccesses.Load(),
		RetriesExhausted: m.retriesExhausted.Load(),

		AverageDuration: avg,
		MinDuration:     minDur,
		MaxDuration:     maxDur,
		ErrorRate:       errorRate,

		CollectedAt: now,
		Uptime:      now.Sub(m.startTime),
	}
}

// ============================================================================
// LoggerMetrics

// LoggerMetrics counts in memory and logs a snapshot on an interval and at
// shutdown.
type LoggerMetrics struct {
	*InMemoryMetrics
	interval time.Duration
	log      *slog.Logger

	done chan struct{}
	once sync.Once
}

func NewLoggerMetrics(log *slog.Logger, interval time.Duration) *LoggerMetrics {
	return &LoggerMetrics{
		InMemoryMetrics: NewInMemoryMetrics(),
		interval:        interval,
		log:             log,
		done:            make(chan struct{}),
	}
}

func (l *LoggerMetrics) Start(ctx context.Context, poolName string) {
	l.InMemoryMetrics.Start(ctx, poolName)
	if l.interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.done:
				return
			case <-ticker.C:
				l.logSnapshot(ctx, "periodic")
			}
		}
	}()
}

func (l *LoggerMetrics) Stop(ctx context.Context) {
	l.once.Do(func() { close(l.done) })
	l.logSnapshot(context.WithoutCancel(ctx), "shutdown")
}

func (l *LoggerMetrics) logSnapshot(ctx context.Context, trigger string) {
	s := l.GetSnapshot()
	l.log.LogAttrs(ctx, slog.LevelInfo, "worker pool metrics",
		slog.String("pool", l.poolName),
		slog.String("trigger", trigger),
		slog.Duration("uptime", s.Uptime.Round(time.Second)),
		slog.Group("tasks",
			slog.Int64("completed", s.TasksCompleted),
			slog.Int64("failed", s.TasksFailed),
			slog.Int64("checkout_errors", s.CheckoutErrors),
		),
		slog.Group("retries",
			slog.Int64("attempts", s.RetryAttempts),
			slog.Int64("successes", s.RetrySuccesses),
			slog.Int64("exhausted", s.RetriesExhausted),
		),
		slog.Group("performance",
			slog.Duration("avg_duration", s.AverageDuration),
			slog.Duration("max_duration", s.MaxDuration),
			slog.Float64("error_rate_pct", s.ErrorRate),
		),
	)
}
