// Package boardspgxstore implements boardsrepo.Storer on Postgres.
package boardspgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
	"github.com/jrazmi/kanban/infrastructure/postgresdb"
	"github.com/jrazmi/kanban/sdk/logger"
)

const taskColumns = `id, board_id, column_id, position, title, description, type,
	assigned_to, due_date, created_by, estimation, version, created_at, updated_at`

// listTasksQuery orders rows the way the in-memory store does. The id
// tiebreak keeps duplicate positions in a stable order between reads.
const listTasksQuery = `SELECT ` + taskColumns + `
	FROM tasks
	WHERE board_id = @board_id
	ORDER BY column_id, position ASC, created_at ASC, id ASC`

type Store struct {
	log  *logger.Logger
	pool *postgresdb.Pool
}

func NewStore(log *logger.Logger, pool *postgresdb.Pool) *Store {
	return &Store{
		log:  log,
		pool: pool,
	}
}

func (s *Store) GetBoard(ctx context.Context, boardID string) (board.Board, error) {
	query := `SELECT id, team_id, name
		FROM boards
		WHERE id = @board_id`

	rows, err := s.pool.Query(ctx, query, pgx.NamedArgs{"board_id": boardID})
	if err != nil {
		if notFound(err) {
			return board.Board{}, fmt.Errorf("board %s: %w", boardID, boardsrepo.ErrNotFound)
		}
		return board.Board{}, postgresdb.HandlePgError(err)
	}
	defer rows.Close()

	b, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[board.Board])
	if err != nil {
		if notFound(err) {
			return board.Board{}, fmt.Errorf("board %s: %w", boardID, boardsrepo.ErrNotFound)
		}
		return board.Board{}, postgresdb.HandlePgError(err)
	}
	return b, nil
}

func (s *Store) ListColumns(ctx context.Context, boardID string) ([]board.Column, error) {
	query := `SELECT id, board_id, name, position
		FROM columns
		WHERE board_id = @board_id
		ORDER BY position ASC, created_at ASC`

	rows, err := s.pool.Query(ctx, query, pgx.NamedArgs{"board_id": boardID})
	if err != nil {
		return nil, postgresdb.HandlePgError(err)
	}
	defer rows.Close()

	cols, err := pgx.CollectRows(rows, pgx.RowToStructByName[board.Column])
	if err != nil {
		return nil, postgresdb.HandlePgError(err)
	}
	return cols, nil
}

func (s *Store) ListTasks(ctx context.Context, boardID string) ([]board.Task, error) {
	rows, err := s.pool.Query(ctx, listTasksQuery, pgx.NamedArgs{"board_id": boardID})
	if err != nil {
		return nil, postgresdb.HandlePgError(err)
	}
	defer rows.Close()

	tasks, err := pgx.CollectRows(rows, pgx.RowToStructByName[board.Task])
	if err != nil {
		return nil, postgresdb.HandlePgError(err)
	}
	return tasks, nil
}

// UpdateTaskPlacement is a compare-and-set on the version column. Zero rows
// updated means the task is gone or someone else wrote it first; a follow-up
// lookup tells the two apart.
func (s *Store) UpdateTaskPlacement(ctx context.Context, p board.Placement) (int64, error) {
	query := `UPDATE tasks
		SET column_id = @column_id,
			position = @position,
			version = version + 1,
			updated_at = NOW()
		WHERE id = @id AND board_id = @board_id AND version = @version
		RETURNING version`

	args := pgx.NamedArgs{
		"id":        p.TaskID,
		"board_id":  p.BoardID,
		"column_id": p.ColumnID,
		"position":  p.Position,
		"version":   p.Version,
	}

	var version int64
	err := s.pool.QueryRow(ctx, query, args).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !notFound(err) {
		return 0, postgresdb.HandlePgError(err)
	}

	var current int64
	err = s.pool.QueryRow(ctx, `SELECT version FROM tasks WHERE id = @id AND board_id = @board_id`, args).Scan(&current)
	if err != nil {
		if notFound(err) {
			return 0, fmt.Errorf("task %s: %w", p.TaskID, boardsrepo.ErrTaskNotFound)
		}
		return 0, postgresdb.HandlePgError(err)
	}
	return 0, fmt.Errorf("task %s at version %d, write expected %d: %w", p.TaskID, current, p.Version, boardsrepo.ErrStalePlacement)
}

func (s *Store) UpdateColumnPosition(ctx context.Context, p board.ColumnPlacement) error {
	query := `UPDATE columns
		SET position = @position, updated_at = NOW()
		WHERE id = @id AND board_id = @board_id`

	tag, err := s.pool.Exec(ctx, query, pgx.NamedArgs{
		"id":       p.ColumnID,
		"board_id": p.BoardID,
		"position": p.Position,
	})
	if err != nil {
		if notFound(err) {
			return fmt.Errorf("column %s: %w", p.ColumnID, boardsrepo.ErrNotFound)
		}
		return postgresdb.HandlePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("column %s: %w", p.ColumnID, boardsrepo.ErrNotFound)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, boardID, userID string) (board.TeamMembership, error) {
	query := `SELECT ut.user_id, ut.team_id, ut.role
		FROM boards b
		JOIN user_team ut ON ut.team_id = b.team_id
		WHERE b.id = @board_id AND ut.user_id = @user_id`

	rows, err := s.pool.Query(ctx, query, pgx.NamedArgs{
		"board_id": boardID,
		"user_id":  userID,
	})
	if err != nil {
		if notFound(err) {
			return board.TeamMembership{}, fmt.Errorf("board %s: %w", boardID, boardsrepo.ErrNotFound)
		}
		return board.TeamMembership{}, postgresdb.HandlePgError(err)
	}
	defer rows.Close()

	m, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[board.TeamMembership])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return board.TeamMembership{}, board.ErrNotMember
		}
		if notFound(err) {
			return board.TeamMembership{}, fmt.Errorf("board %s: %w", boardID, boardsrepo.ErrNotFound)
		}
		return board.TeamMembership{}, postgresdb.HandlePgError(err)
	}
	return m, nil
}

func (s *Store) CreateColumns(ctx context.Context, columns []board.Column) error {
	query := `INSERT INTO columns (id, board_id, name, position)
		VALUES (@id, @board_id, @name, @position)`

	batch := &pgx.Batch{}
	for _, c := range columns {
		batch.Queue(query, pgx.NamedArgs{
			"id":       c.ID,
			"board_id": c.BoardID,
			"name":     c.Name,
			"position": c.Position,
		})
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return postgresdb.HandlePgError(err)
	}
	return nil
}

// CreateTask inserts at position 0 and shifts the column down in the same
// transaction, so new tasks never collide with an existing rank.
func (s *Store) CreateTask(ctx context.Context, nt boardsrepo.NewTask) (board.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return board.Task{}, postgresdb.HandlePgError(err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	check := `SELECT EXISTS (SELECT 1 FROM columns WHERE id = @column_id AND board_id = @board_id)`
	if err := tx.QueryRow(ctx, check, pgx.NamedArgs{"column_id": nt.ColumnID, "board_id": nt.BoardID}).Scan(&exists); err != nil {
		if notFound(err) {
			return board.Task{}, fmt.Errorf("column %s: %w", nt.ColumnID, boardsrepo.ErrColumnNotFound)
		}
		return board.Task{}, postgresdb.HandlePgError(err)
	}
	if !exists {
		return board.Task{}, fmt.Errorf("column %s: %w", nt.ColumnID, boardsrepo.ErrColumnNotFound)
	}

	shift := `UPDATE tasks
		SET position = position + 1, version = version + 1, updated_at = NOW()
		WHERE board_id = @board_id AND column_id = @column_id`

	args := pgx.NamedArgs{
		"id":          nt.ID,
		"board_id":    nt.BoardID,
		"column_id":   nt.ColumnID,
		"title":       nt.Title,
		"description": nt.Description,
		"type":        nt.Type,
		"assigned_to": nt.AssignedTo,
		"due_date":    nt.DueDate,
		"created_by":  nt.CreatedBy,
		"estimation":  nt.Estimation,
	}

	if _, err := tx.Exec(ctx, shift, args); err != nil {
		return board.Task{}, postgresdb.HandlePgError(err)
	}

	insert := `INSERT INTO tasks (id, board_id, column_id, position, title, description, type,
			assigned_to, due_date, created_by, estimation)
		VALUES (@id, @board_id, @column_id, 0, @title, @description, @type,
			@assigned_to, @due_date, @created_by, @estimation)
		RETURNING ` + taskColumns

	rows, err := tx.Query(ctx, insert, args)
	if err != nil {
		return board.Task{}, postgresdb.HandlePgError(err)
	}
	task, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[board.Task])
	if err != nil {
		return board.Task{}, postgresdb.HandlePgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return board.Task{}, postgresdb.HandlePgError(err)
	}
	return task, nil
}

// UpdateTask is a compare-and-set on the version column like
// UpdateTaskPlacement. COALESCE keeps the stored value for unset fields.
func (s *Store) UpdateTask(ctx context.Context, u boardsrepo.TaskUpdate) (board.Task, error) {
	query := `UPDATE tasks
		SET title = COALESCE(@title, title),
			description = COALESCE(@description, description),
			type = COALESCE(@type, type),
			assigned_to = COALESCE(@assigned_to, assigned_to),
			due_date = COALESCE(@due_date, due_date),
			estimation = COALESCE(@estimation, estimation),
			version = version + 1,
			updated_at = NOW()
		WHERE id = @id AND board_id = @board_id AND version = @version
		RETURNING ` + taskColumns

	args := pgx.NamedArgs{
		"id":          u.ID,
		"board_id":    u.BoardID,
		"version":     u.Version,
		"title":       u.Title,
		"description": u.Description,
		"type":        u.Type,
		"assigned_to": u.AssignedTo,
		"due_date":    u.DueDate,
		"estimation":  u.Estimation,
	}

	rows, err := s.pool.Query(ctx, query, args)
	if err == nil {
		var task board.Task
		task, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[board.Task])
		if err == nil {
			return task, nil
		}
	}
	if !notFound(err) {
		return board.Task{}, postgresdb.HandlePgError(err)
	}

	var current int64
	err = s.pool.QueryRow(ctx, `SELECT version FROM tasks WHERE id = @id AND board_id = @board_id`, args).Scan(&current)
	if err != nil {
		if notFound(err) {
			return board.Task{}, fmt.Errorf("task %s: %w", u.ID, boardsrepo.ErrTaskNotFound)
		}
		return board.Task{}, postgresdb.HandlePgError(err)
	}
	return board.Task{}, fmt.Errorf("task %s at version %d, update expected %d: %w", u.ID, current, u.Version, boardsrepo.ErrStalePlacement)
}

// DeleteTask removes the row and moves the tasks below it up by one in the
// same transaction, so the column stays dense.
func (s *Store) DeleteTask(ctx context.Context, boardID, taskID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return postgresdb.HandlePgError(err)
	}
	defer tx.Rollback(ctx)

	del := `DELETE FROM tasks
		WHERE id = @id AND board_id = @board_id
		RETURNING column_id, position`

	var (
		columnID string
		position int
	)
	err = tx.QueryRow(ctx, del, pgx.NamedArgs{"id": taskID, "board_id": boardID}).Scan(&columnID, &position)
	if err != nil {
		if notFound(err) {
			return fmt.Errorf("task %s: %w", taskID, boardsrepo.ErrTaskNotFound)
		}
		return postgresdb.HandlePgError(err)
	}

	shift := `UPDATE tasks
		SET position = position - 1, version = version + 1, updated_at = NOW()
		WHERE board_id = @board_id AND column_id = @column_id AND position > @position`

	if _, err := tx.Exec(ctx, shift, pgx.NamedArgs{
		"board_id":  boardID,
		"column_id": columnID,
		"position":  position,
	}); err != nil {
		return postgresdb.HandlePgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return postgresdb.HandlePgError(err)
	}
	return nil
}

// ListCorruptBoards finds columns whose positions are not a dense 0..n-1
// range. Tasks pointing at deleted columns are ignored.
func (s *Store) ListCorruptBoards(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT DISTINCT t.board_id
		FROM tasks t
		JOIN columns c ON c.id = t.column_id AND c.board_id = t.board_id
		GROUP BY t.board_id, t.column_id
		HAVING MIN(t.position) <> 0
			OR MAX(t.position) <> COUNT(*) - 1
			OR COUNT(DISTINCT t.position) <> COUNT(*)
		LIMIT @limit`

	rows, err := s.pool.Query(ctx, query, pgx.NamedArgs{"limit": limit})
	if err != nil {
		return nil, postgresdb.HandlePgError(err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, postgresdb.HandlePgError(err)
	}
	return ids, nil
}

// notFound reports whether err means no row matched, including keys that
// are not valid uuids.
func notFound(err error) bool {
	return errors.Is(postgresdb.HandlePgError(err), postgresdb.ErrDBNotFound)
}
