package boardsession

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
)

// writeAll runs write for indexes 0..n-1 with at most MaxParallelWrites in
// flight and returns one error slot per index. Every write runs to completion;
// one failure does not cancel the others.
func (s *Session) writeAll(ctx context.Context, n int, write func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxParallelWrites)

	for i := range n {
		g.Go(func() error {
			errs[i] = s.withRetry(ctx, func(ctx context.Context) error {
				return write(ctx, i)
			})
			return nil
		})
	}

	_ = g.Wait()
	return errs
}

// withRetry retries fn with exponential backoff up to WriteAttempts times.
// Rejections that cannot succeed on retry return immediately.
func (s *Session) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.WriteAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(s.cfg.backoff(attempt)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent(lastErr) || ctx.Err() != nil {
			return lastErr
		}

		s.log.InfoContext(ctx, "placement write attempt failed",
			"board_id", s.boardID,
			"attempt", attempt,
			"max_attempts", s.cfg.WriteAttempts,
			"error", lastErr)
	}

	return lastErr
}

func permanent(err error) bool {
	return errors.Is(err, boardsrepo.ErrStalePlacement) ||
		errors.Is(err, boardsrepo.ErrTaskNotFound) ||
		errors.Is(err, boardsrepo.ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
