// Package boardsrepo is the repository over the task and column store.
package boardsrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/sdk/logger"
)

// Set of error values for operations on boards.
var (
	ErrNotFound       = errors.New("board not found")
	ErrTaskNotFound   = errors.New("task not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrStalePlacement = errors.New("task placement is stale")
	ErrInvalidTask    = errors.New("invalid task")
)

// NewTask is the input for creating a task. New tasks go to the top of
// their column.
type NewTask struct {
	ID          string
	BoardID     string
	ColumnID    string
	Title       string
	Description *string
	Type        board.TaskType
	AssignedTo  *string
	DueDate     *time.Time
	CreatedBy   *string
	Estimation  *int
}

// Validate checks the fields a store cannot default.
func (n NewTask) Validate() error {
	var problems []string
	if n.ID == "" {
		problems = append(problems, "id is required")
	}
	if n.BoardID == "" {
		problems = append(problems, "board_id is required")
	}
	if n.ColumnID == "" {
		problems = append(problems, "column_id is required")
	}
	if strings.TrimSpace(n.Title) == "" {
		problems = append(problems, "title is required")
	}
	if n.Type != "" {
		if _, err := board.ParseTaskType(string(n.Type)); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if n.Estimation != nil && *n.Estimation < 0 {
		problems = append(problems, "estimation must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTask, strings.Join(problems, "; "))
	}
	return nil
}

// TaskUpdate edits a task's content. Nil fields are left as stored. Version
// must match the stored row.
type TaskUpdate struct {
	ID          string
	BoardID     string
	Version     int64
	Title       *string
	Description *string
	Type        *board.TaskType
	AssignedTo  *string
	DueDate     *time.Time
	Estimation  *int
}

// Validate checks the update names a versioned task and that any field it
// sets is usable.
func (u TaskUpdate) Validate() error {
	var problems []string
	if u.ID == "" {
		problems = append(problems, "id is required")
	}
	if u.BoardID == "" {
		problems = append(problems, "board_id is required")
	}
	if u.Version <= 0 {
		problems = append(problems, "version is required")
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		problems = append(problems, "title must not be blank")
	}
	if u.Type != nil {
		if _, err := board.ParseTaskType(string(*u.Type)); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if u.Estimation != nil && *u.Estimation < 0 {
		problems = append(problems, "estimation must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTask, strings.Join(problems, "; "))
	}
	return nil
}

// Storer is the persistence collaborator. Placement writes are single-row;
// CreateTask and DeleteTask are the only writes that span rows atomically.
type Storer interface {
	GetBoard(ctx context.Context, boardID string) (board.Board, error)
	ListColumns(ctx context.Context, boardID string) ([]board.Column, error)
	ListTasks(ctx context.Context, boardID string) ([]board.Task, error)

	// UpdateTaskPlacement writes one task's column and position when the
	// stored version equals p.Version, and returns the new version. A version
	// mismatch returns ErrStalePlacement.
	UpdateTaskPlacement(ctx context.Context, p board.Placement) (int64, error)
	UpdateColumnPosition(ctx context.Context, p board.ColumnPlacement) error

	GetMembership(ctx context.Context, boardID, userID string) (board.TeamMembership, error)
	CreateColumns(ctx context.Context, columns []board.Column) error

	// CreateTask inserts at position 0 and shifts the column down in one
	// transaction. An unknown column returns ErrColumnNotFound.
	CreateTask(ctx context.Context, task NewTask) (board.Task, error)

	// UpdateTask edits content when the stored version equals u.Version and
	// returns the new row. Placement is untouched.
	UpdateTask(ctx context.Context, u TaskUpdate) (board.Task, error)

	// DeleteTask removes a task and closes the gap it leaves, in one
	// transaction. A missing task returns ErrTaskNotFound.
	DeleteTask(ctx context.Context, boardID, taskID string) error

	// ListCorruptBoards returns ids of boards with at least one column whose
	// task positions are not exactly 0..n-1.
	ListCorruptBoards(ctx context.Context, limit int) ([]string, error)
}

// Repository wraps a Storer with logging and error context.
type Repository struct {
	log    *logger.Logger
	storer Storer
}

func NewRepository(log *logger.Logger, storer Storer) *Repository {
	return &Repository{
		log:    log,
		storer: storer,
	}
}

func (r *Repository) GetBoard(ctx context.Context, boardID string) (board.Board, error) {
	b, err := r.storer.GetBoard(ctx, boardID)
	if err != nil {
		return board.Board{}, fmt.Errorf("boards repository get board: %w", err)
	}
	return b, nil
}

func (r *Repository) ListColumns(ctx context.Context, boardID string) ([]board.Column, error) {
	cols, err := r.storer.ListColumns(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("boards repository list columns: %w", err)
	}
	return cols, nil
}

func (r *Repository) ListTasks(ctx context.Context, boardID string) ([]board.Task, error) {
	tasks, err := r.storer.ListTasks(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("boards repository list tasks: %w", err)
	}
	return tasks, nil
}

func (r *Repository) UpdateTaskPlacement(ctx context.Context, p board.Placement) (int64, error) {
	version, err := r.storer.UpdateTaskPlacement(ctx, p)
	if err != nil {
		if errors.Is(err, ErrStalePlacement) {
			r.log.InfoContext(ctx, "stale placement", "task_id", p.TaskID, "version", p.Version)
		}
		return 0, fmt.Errorf("boards repository update placement %s: %w", p.TaskID, err)
	}
	return version, nil
}

func (r *Repository) UpdateColumnPosition(ctx context.Context, p board.ColumnPlacement) error {
	if err := r.storer.UpdateColumnPosition(ctx, p); err != nil {
		return fmt.Errorf("boards repository update column %s: %w", p.ColumnID, err)
	}
	return nil
}

func (r *Repository) GetMembership(ctx context.Context, boardID, userID string) (board.TeamMembership, error) {
	m, err := r.storer.GetMembership(ctx, boardID, userID)
	if err != nil {
		return board.TeamMembership{}, fmt.Errorf("boards repository get membership: %w", err)
	}
	return m, nil
}

func (r *Repository) CreateColumns(ctx context.Context, columns []board.Column) error {
	if len(columns) == 0 {
		return nil
	}
	if err := r.storer.CreateColumns(ctx, columns); err != nil {
		return fmt.Errorf("boards repository create columns: %w", err)
	}
	return nil
}

func (r *Repository) CreateTask(ctx context.Context, task NewTask) (board.Task, error) {
	if task.Type == "" {
		task.Type = board.TypeTask
	}
	if err := task.Validate(); err != nil {
		return board.Task{}, err
	}

	created, err := r.storer.CreateTask(ctx, task)
	if err != nil {
		return board.Task{}, fmt.Errorf("boards repository create task: %w", err)
	}

	r.log.InfoContext(ctx, "created task", "task_id", created.ID, "board_id", created.BoardID, "column_id", created.ColumnID)
	return created, nil
}

func (r *Repository) UpdateTask(ctx context.Context, u TaskUpdate) (board.Task, error) {
	if err := u.Validate(); err != nil {
		return board.Task{}, err
	}

	updated, err := r.storer.UpdateTask(ctx, u)
	if err != nil {
		if errors.Is(err, ErrStalePlacement) {
			r.log.InfoContext(ctx, "stale task update", "task_id", u.ID, "version", u.Version)
		}
		return board.Task{}, fmt.Errorf("boards repository update task %s: %w", u.ID, err)
	}
	return updated, nil
}

func (r *Repository) DeleteTask(ctx context.Context, boardID, taskID string) error {
	if err := r.storer.DeleteTask(ctx, boardID, taskID); err != nil {
		return fmt.Errorf("boards repository delete task %s: %w", taskID, err)
	}

	r.log.InfoContext(ctx, "deleted task", "task_id", taskID, "board_id", boardID)
	return nil
}

func (r *Repository) ListCorruptBoards(ctx context.Context, limit int) ([]string, error) {
	ids, err := r.storer.ListCorruptBoards(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("boards repository list corrupt boards: %w", err)
	}
	return ids, nil
}

// SeedDefaultColumns gives a board the starter columns when it has none. It
// returns the board's columns either way.
func (r *Repository) SeedDefaultColumns(ctx context.Context, boardID string, newID func() string) ([]board.Column, error) {
	existing, err := r.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	cols := board.DefaultColumns(boardID, newID)
	if err := r.CreateColumns(ctx, cols); err != nil {
		return nil, err
	}

	r.log.InfoContext(ctx, "seeded default columns", "board_id", boardID, "count", len(cols))
	return cols, nil
}
