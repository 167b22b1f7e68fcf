// Package boardsession keeps an in-memory copy of one board and persists
// drag and drop moves against it.
//
// A Session is the board state cache: Load fills it from the store, Move
// resolves a drop with the reorder package, applies the result optimistically
// and writes the changed rows back one at a time. The store has no multi-row
// transaction, so a commit can partially fail; the session then resyncs from
// the store and reports which rows did not land.
//
// Each session runs one move at a time. A move that arrives while the previous
// one is still reconciling or persisting is rejected with ErrMoveInFlight.
package boardsession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/reorder"
	"github.com/jrazmi/kanban/sdk/logger"
)

// Store is what a session needs from the task store.
type Store interface {
	ListColumns(ctx context.Context, boardID string) ([]board.Column, error)
	ListTasks(ctx context.Context, boardID string) ([]board.Task, error)
	UpdateTaskPlacement(ctx context.Context, p board.Placement) (int64, error)
	UpdateColumnPosition(ctx context.Context, p board.ColumnPlacement) error
}

// State is the session's position in the move lifecycle.
type State int

// Set of session states.
const (
	Idle State = iota
	Reconciling
	Persisting
)

func (s State) String() string {
	switch s {
	case Reconciling:
		return "reconciling"
	case Persisting:
		return "persisting"
	}
	return "idle"
}

// Outcome describes a processed task drop.
type Outcome struct {
	Kind   reorder.Kind
	Reason reorder.Reason

	// Changed holds the rows that were written, with their new versions.
	Changed []board.Task
}

// ColumnOutcome describes a processed column drop.
type ColumnOutcome struct {
	Kind    reorder.Kind
	Reason  reorder.Reason
	Changed []board.Column
}

// Session caches one board.
type Session struct {
	boardID string
	log     *logger.Logger
	store   Store
	cfg     Config
	now     func() time.Time

	mu       sync.RWMutex
	state    State
	loaded   bool
	stale    bool
	gen      uint64 // bumped by Invalidate
	columns  []board.Column
	tasks    []board.Task
	previous []board.Task // rollback point set by ApplyReorder
	lastUsed time.Time
}

// New creates an empty session for boardID. Nothing is read until Load or
// the first Move.
func New(log *logger.Logger, store Store, boardID string, cfg Config) *Session {
	return &Session{
		boardID:  boardID,
		log:      log,
		store:    store,
		cfg:      cfg.normalized(),
		now:      time.Now,
		lastUsed: time.Now(),
	}
}

func (s *Session) BoardID() string {
	return s.boardID
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Loaded reports whether the session holds board data that has not been
// invalidated since it was read.
func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded && !s.stale
}

// Cached reports whether the session holds any board data, stale or not.
func (s *Session) Cached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Invalidate marks the cached board as out of date so the next Load or Move
// reads it again. A move in flight keeps running and keeps the session busy.
// A load already reading when Invalidate is called does not clear the mark.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
	s.gen++
}

// Load replaces the cached board with a fresh read. It fails with
// ErrMoveInFlight while a move is running and with *FetchError when the store
// cannot be read; the cached state is untouched in both cases.
func (s *Session) Load(ctx context.Context) ([]board.Column, []board.Task, error) {
	if err := s.begin(); err != nil {
		return nil, nil, err
	}
	defer s.finish()

	if err := s.load(ctx); err != nil {
		return nil, nil, err
	}
	cols, tasks := s.Snapshot()
	return cols, tasks, nil
}

// Snapshot returns copies of the cached columns and tasks. While a move is
// persisting, the snapshot shows the optimistic state.
func (s *Session) Snapshot() ([]board.Column, []board.Task) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return board.CloneColumns(s.columns), board.CloneTasks(s.tasks)
}

// ApplyReorder replaces the cached task list in one step and remembers the
// previous list as the rollback point for Commit.
func (s *Session) ApplyReorder(tasks []board.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous = s.tasks
	s.tasks = board.CloneTasks(tasks)
	s.lastUsed = s.now()
}

// Move resolves the drop of activeID onto overID, applies it and persists the
// changed rows. Drops that resolve to nothing return a NoOp outcome and no
// error.
func (s *Session) Move(ctx context.Context, activeID, overID string) (Outcome, error) {
	if err := s.begin(); err != nil {
		return Outcome{}, err
	}
	defer s.finish()

	if !s.Loaded() {
		if err := s.load(ctx); err != nil {
			return Outcome{}, err
		}
	}

	s.mu.RLock()
	res := reorder.Resolve(s.columns, s.tasks, activeID, overID)
	s.mu.RUnlock()

	if res.Kind == reorder.NoOp {
		s.log.InfoContext(ctx, "move ignored",
			"board_id", s.boardID,
			"active_id", activeID,
			"over_id", overID,
			"reason", string(res.Reason))
		return Outcome{Kind: reorder.NoOp, Reason: res.Reason}, nil
	}

	s.ApplyReorder(res.Tasks)
	s.setState(Persisting)

	changed, err := s.Commit(ctx, res.Changed)
	if err != nil {
		return Outcome{}, err
	}

	s.log.InfoContext(ctx, "move persisted",
		"board_id", s.boardID,
		"active_id", activeID,
		"over_id", overID,
		"source_column_id", res.SourceColumnID,
		"target_column_id", res.TargetColumnID,
		"changed", len(changed))

	return Outcome{Kind: reorder.Move, Changed: changed}, nil
}

// Commit writes one placement per changed task, concurrently, and waits for
// all of them. Successful writes update the cached versions. When any write
// fails after retries the session resyncs from the store, or restores the
// state before ApplyReorder if that read fails too, and returns a
// *PlacementWriteError.
//
// Commit does not take the single-flight guard; Move does.
func (s *Session) Commit(ctx context.Context, changed []board.Task) ([]board.Task, error) {
	placements := make([]board.Placement, len(changed))
	for i, t := range changed {
		placements[i] = board.PlacementOf(t)
	}

	versions := make([]int64, len(placements))
	errs := s.writeAll(ctx, len(placements), func(ctx context.Context, i int) error {
		v, err := s.store.UpdateTaskPlacement(ctx, placements[i])
		if err != nil {
			return err
		}
		versions[i] = v
		return nil
	})

	written := make(map[string]int64, len(placements))
	var (
		failed, succeeded []string
		causes            []error
	)
	for i, p := range placements {
		if errs[i] != nil {
			failed = append(failed, p.TaskID)
			causes = append(causes, errs[i])
			continue
		}
		succeeded = append(succeeded, p.TaskID)
		written[p.TaskID] = versions[i]
	}

	s.recordVersions(written)

	if len(failed) == 0 {
		s.mu.Lock()
		s.previous = nil
		s.mu.Unlock()

		out := board.CloneTasks(changed)
		for i := range out {
			out[i].Version = written[out[i].ID]
		}
		return out, nil
	}

	werr := &PlacementWriteError{
		BoardID:   s.boardID,
		Failed:    failed,
		Succeeded: succeeded,
		Err:       errors.Join(causes...),
	}
	werr.Recovery = s.recover(ctx)

	s.log.ErrorContext(ctx, "placement writes failed",
		"board_id", s.boardID,
		"failed", failed,
		"succeeded", len(succeeded),
		"recovery", werr.Recovery.String(),
		"error", werr.Err)

	return nil, werr
}

// MoveColumn reorders columns the same way Move reorders tasks.
func (s *Session) MoveColumn(ctx context.Context, activeID, overID string) (ColumnOutcome, error) {
	if err := s.begin(); err != nil {
		return ColumnOutcome{}, err
	}
	defer s.finish()

	if !s.Loaded() {
		if err := s.load(ctx); err != nil {
			return ColumnOutcome{}, err
		}
	}

	s.mu.RLock()
	res := reorder.MoveColumn(s.columns, activeID, overID)
	previous := s.columns
	s.mu.RUnlock()

	if res.Kind == reorder.NoOp {
		return ColumnOutcome{Kind: reorder.NoOp, Reason: res.Reason}, nil
	}

	s.mu.Lock()
	s.columns = res.Columns
	s.state = Persisting
	s.lastUsed = s.now()
	s.mu.Unlock()

	placements := res.Placements()
	errs := s.writeAll(ctx, len(placements), func(ctx context.Context, i int) error {
		return s.store.UpdateColumnPosition(ctx, placements[i])
	})

	var (
		failed, succeeded []string
		causes            []error
	)
	for i, p := range placements {
		if errs[i] != nil {
			failed = append(failed, p.ColumnID)
			causes = append(causes, errs[i])
			continue
		}
		succeeded = append(succeeded, p.ColumnID)
	}

	if len(failed) == 0 {
		s.log.InfoContext(ctx, "column move persisted",
			"board_id", s.boardID,
			"active_id", activeID,
			"over_id", overID,
			"changed", len(res.Changed))
		return ColumnOutcome{Kind: reorder.Move, Changed: res.Changed}, nil
	}

	werr := &PlacementWriteError{
		BoardID:   s.boardID,
		Failed:    failed,
		Succeeded: succeeded,
		Err:       errors.Join(causes...),
	}

	werr.Recovery = Resynced
	if err := s.resync(ctx); err != nil {
		s.mu.Lock()
		s.columns = previous
		s.mu.Unlock()
		werr.Recovery = RolledBack
	}

	s.log.ErrorContext(ctx, "column writes failed",
		"board_id", s.boardID,
		"failed", failed,
		"recovery", werr.Recovery.String(),
		"error", werr.Err)

	return ColumnOutcome{}, werr
}

// =============================================================================

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrMoveInFlight
	}
	s.state = Reconciling
	s.lastUsed = s.now()
	return nil
}

func (s *Session) finish() {
	s.setState(Idle)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed, s.state == Idle
}

func (s *Session) load(ctx context.Context) error {
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	cols, err := s.store.ListColumns(ctx, s.boardID)
	if err != nil {
		return &FetchError{BoardID: s.boardID, Op: "list columns", Err: err}
	}

	tasks, err := s.store.ListTasks(ctx, s.boardID)
	if err != nil {
		return &FetchError{BoardID: s.boardID, Op: "list tasks", Err: err}
	}

	s.mu.Lock()
	s.columns = cols
	s.tasks = tasks
	s.previous = nil
	s.loaded = true
	s.stale = s.gen != gen
	s.lastUsed = s.now()
	s.mu.Unlock()
	return nil
}

// resync reloads the board on a context that survives cancellation of the
// request that triggered it.
func (s *Session) resync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ResyncTimeout)
	defer cancel()

	if err := s.load(ctx); err != nil {
		s.log.ErrorContext(ctx, "resync failed", "board_id", s.boardID, "error", err)
		return err
	}
	return nil
}

func (s *Session) recover(ctx context.Context) Recovery {
	if err := s.resync(ctx); err == nil {
		return Resynced
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previous != nil {
		s.tasks = s.previous
		s.previous = nil
	}
	return RolledBack
}

func (s *Session) recordVersions(written map[string]int64) {
	if len(written) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := board.CloneTasks(s.tasks)
	for i := range tasks {
		if v, ok := written[tasks[i].ID]; ok {
			tasks[i].Version = v
		}
	}
	s.tasks = tasks
}
