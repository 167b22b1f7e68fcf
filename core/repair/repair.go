// Package repair finds boards whose task positions are no longer dense and
// renumbers them. It runs as a workers.Processor so a pool can poll it in the
// background or drain it once from the command line.
package repair

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/reorder"
	"github.com/jrazmi/kanban/infrastructure/workers"
	"github.com/jrazmi/kanban/sdk/logger"
)

// Store is what the repair job needs from the task store.
type Store interface {
	ListCorruptBoards(ctx context.Context, limit int) ([]string, error)
	ListColumns(ctx context.Context, boardID string) ([]board.Column, error)
	ListTasks(ctx context.Context, boardID string) ([]board.Task, error)
	UpdateTaskPlacement(ctx context.Context, p board.Placement) (int64, error)
}

// Job is one board to renumber.
type Job struct {
	BoardID string

	// Repaired is the number of rows rewritten, set by Process.
	Repaired int
}

func (j Job) GetID() string { return j.BoardID }

// Options tunes the processor.
type Options struct {
	BatchSize int           `env:"REPAIR_BATCH_SIZE" default:"50"`
	Cooldown  time.Duration `env:"REPAIR_COOLDOWN" default:"5m"`
}

// Processor implements workers.Processor[Job]. Boards are claimed in process
// so concurrent workers never repair the same board at once. A board whose
// repair failed is skipped until its cooldown passes.
type Processor struct {
	log   *logger.Logger
	store Store
	opts  Options
	now   func() time.Time

	// OnRepaired runs after a board was rewritten, e.g. to drop cached state.
	OnRepaired func(ctx context.Context, boardID string)

	mu      sync.Mutex
	claimed map[string]bool
	backoff map[string]time.Time
}

func NewProcessor(log *logger.Logger, store Store, opts Options) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Minute
	}
	return &Processor{
		log:     log,
		store:   store,
		opts:    opts,
		now:     time.Now,
		claimed: map[string]bool{},
		backoff: map[string]time.Time{},
	}
}

// Checkout claims the first corrupt board nobody is working on.
func (p *Processor) Checkout(ctx context.Context, workerID string) (Job, error) {
	ids, err := p.store.ListCorruptBoards(ctx, p.opts.BatchSize)
	if err != nil {
		return Job{}, fmt.Errorf("list corrupt boards: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, id := range ids {
		if p.claimed[id] {
			continue
		}
		if until, ok := p.backoff[id]; ok {
			if now.Before(until) {
				continue
			}
			delete(p.backoff, id)
		}
		p.claimed[id] = true
		return Job{BoardID: id}, nil
	}
	return Job{}, workers.ErrNoWorkAvailable
}

// Process renumbers every column of the board. Each write carries the
// version it was computed against, so a concurrent move makes it fail with
// a stale placement and the pool retries against fresh rows.
func (p *Processor) Process(ctx context.Context, job Job) (Job, error) {
	columns, err := p.store.ListColumns(ctx, job.BoardID)
	if err != nil {
		return job, fmt.Errorf("list columns: %w", err)
	}
	tasks, err := p.store.ListTasks(ctx, job.BoardID)
	if err != nil {
		return job, fmt.Errorf("list tasks: %w", err)
	}

	_, changed := reorder.NormalizeTasks(columns, tasks)

	var errs []error
	repaired := 0
	for _, t := range changed {
		if _, err := p.store.UpdateTaskPlacement(ctx, board.PlacementOf(t)); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", t.ID, err))
			continue
		}
		repaired++
	}

	job.Repaired += repaired
	return job, errors.Join(errs...)
}

// Complete releases the claim. A board that needed no writes is still
// reported corrupt by the store, so it is parked like a failure.
func (p *Processor) Complete(ctx context.Context, job Job, processingTimeMS int) error {
	p.release(job.BoardID, job.Repaired == 0)

	p.log.InfoContext(ctx, "repaired board positions",
		"board_id", job.BoardID,
		"rows", job.Repaired,
		"duration_ms", processingTimeMS)

	if p.OnRepaired != nil && job.Repaired > 0 {
		p.OnRepaired(ctx, job.BoardID)
	}
	return nil
}

func (p *Processor) Fail(ctx context.Context, job Job, err error) error {
	p.release(job.BoardID, true)

	p.log.ErrorContext(ctx, "board repair failed",
		"board_id", job.BoardID,
		"retry_after", p.opts.Cooldown,
		"error", err)
	return nil
}

func (p *Processor) release(boardID string, park bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.claimed, boardID)
	if park {
		p.backoff[boardID] = p.now().Add(p.opts.Cooldown)
	}
}
