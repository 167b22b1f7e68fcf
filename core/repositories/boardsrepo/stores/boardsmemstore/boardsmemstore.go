// Package boardsmemstore is an in-process boardsrepo.Storer. It backs the
// service when no database is configured and is the fixture for tests above
// the store layer.
package boardsmemstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
)

type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	boards      map[string]board.Board
	columns     map[string]board.Column
	tasks       map[string]board.Task
	memberships map[string][]board.TeamMembership // team id
}

func NewStore() *Store {
	return &Store{
		now:         time.Now,
		boards:      map[string]board.Board{},
		columns:     map[string]board.Column{},
		tasks:       map[string]board.Task{},
		memberships: map[string][]board.TeamMembership{},
	}
}

// AddBoard registers a board.
func (s *Store) AddBoard(b board.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[b.ID] = b
}

// AddMember adds or replaces a user's role in a team.
func (s *Store) AddMember(m board.TeamMembership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := slices.DeleteFunc(s.memberships[m.TeamID], func(x board.TeamMembership) bool {
		return x.UserID == m.UserID
	})
	s.memberships[m.TeamID] = append(members, m)
}

// PutTask stores t as is, bypassing version checks. Version defaults to 1.
func (s *Store) PutTask(t board.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Version == 0 {
		t.Version = 1
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.tasks[t.ID] = t
}

// Task returns the stored row for id.
func (s *Store) Task(id string) (board.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *Store) GetBoard(ctx context.Context, boardID string) (board.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[boardID]
	if !ok {
		return board.Board{}, fmt.Errorf("board %s: %w", boardID, boardsrepo.ErrNotFound)
	}
	return b, nil
}

func (s *Store) ListColumns(ctx context.Context, boardID string) ([]board.Column, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []board.Column
	for _, c := range s.columns {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b board.Column) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) ListTasks(ctx context.Context, boardID string) ([]board.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []board.Task
	for _, t := range s.tasks {
		if t.BoardID == boardID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b board.Task) int {
		if c := cmp.Compare(a.ColumnID, b.ColumnID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) UpdateTaskPlacement(ctx context.Context, p board.Placement) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[p.TaskID]
	if !ok || t.BoardID != p.BoardID {
		return 0, fmt.Errorf("task %s: %w", p.TaskID, boardsrepo.ErrTaskNotFound)
	}
	if t.Version != p.Version {
		return 0, fmt.Errorf("task %s at version %d, write expected %d: %w", p.TaskID, t.Version, p.Version, boardsrepo.ErrStalePlacement)
	}

	t.ColumnID = p.ColumnID
	t.Position = p.Position
	t.Version++
	t.UpdatedAt = s.now()
	s.tasks[t.ID] = t
	return t.Version, nil
}

func (s *Store) UpdateColumnPosition(ctx context.Context, p board.ColumnPlacement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.columns[p.ColumnID]
	if !ok || c.BoardID != p.BoardID {
		return fmt.Errorf("column %s: %w", p.ColumnID, boardsrepo.ErrNotFound)
	}
	c.Position = p.Position
	s.columns[c.ID] = c
	return nil
}

func (s *Store) GetMembership(ctx context.Context, boardID, userID string) (board.TeamMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.boards[boardID]
	if !ok {
		return board.TeamMembership{}, fmt.Errorf("board %s: %w", boardID, boardsrepo.ErrNotFound)
	}
	for _, m := range s.memberships[b.TeamID] {
		if m.UserID == userID {
			return m, nil
		}
	}
	return board.TeamMembership{}, board.ErrNotMember
}

func (s *Store) CreateColumns(ctx context.Context, columns []board.Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range columns {
		if _, ok := s.columns[c.ID]; ok {
			return fmt.Errorf("column %s already exists", c.ID)
		}
	}
	for _, c := range columns {
		s.columns[c.ID] = c
	}
	return nil
}

func (s *Store) CreateTask(ctx context.Context, nt boardsrepo.NewTask) (board.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[nt.ID]; ok {
		return board.Task{}, fmt.Errorf("task %s already exists", nt.ID)
	}
	if c, ok := s.columns[nt.ColumnID]; !ok || c.BoardID != nt.BoardID {
		return board.Task{}, fmt.Errorf("column %s: %w", nt.ColumnID, boardsrepo.ErrColumnNotFound)
	}

	now := s.now()
	for id, t := range s.tasks {
		if t.BoardID == nt.BoardID && t.ColumnID == nt.ColumnID {
			t.Position++
			t.Version++
			t.UpdatedAt = now
			s.tasks[id] = t
		}
	}

	t := board.Task{
		ID:          nt.ID,
		BoardID:     nt.BoardID,
		ColumnID:    nt.ColumnID,
		Position:    0,
		Title:       nt.Title,
		Description: nt.Description,
		Type:        nt.Type,
		AssignedTo:  nt.AssignedTo,
		DueDate:     nt.DueDate,
		CreatedBy:   nt.CreatedBy,
		Estimation:  nt.Estimation,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, u boardsrepo.TaskUpdate) (board.Task, error) {
	if err := ctx.Err(); err != nil {
		return board.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[u.ID]
	if !ok || t.BoardID != u.BoardID {
		return board.Task{}, fmt.Errorf("task %s: %w", u.ID, boardsrepo.ErrTaskNotFound)
	}
	if t.Version != u.Version {
		return board.Task{}, fmt.Errorf("task %s at version %d, update expected %d: %w", u.ID, t.Version, u.Version, boardsrepo.ErrStalePlacement)
	}

	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = u.Description
	}
	if u.Type != nil {
		t.Type = *u.Type
	}
	if u.AssignedTo != nil {
		t.AssignedTo = u.AssignedTo
	}
	if u.DueDate != nil {
		t.DueDate = u.DueDate
	}
	if u.Estimation != nil {
		t.Estimation = u.Estimation
	}
	t.Version++
	t.UpdatedAt = s.now()
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, boardID, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	gone, ok := s.tasks[taskID]
	if !ok || gone.BoardID != boardID {
		return fmt.Errorf("task %s: %w", taskID, boardsrepo.ErrTaskNotFound)
	}
	delete(s.tasks, taskID)

	now := s.now()
	for id, t := range s.tasks {
		if t.BoardID == boardID && t.ColumnID == gone.ColumnID && t.Position > gone.Position {
			t.Position--
			t.Version++
			t.UpdatedAt = now
			s.tasks[id] = t
		}
	}
	return nil
}

func (s *Store) ListCorruptBoards(ctx context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := map[string][]int{}
	boardOf := map[string]string{}
	for _, t := range s.tasks {
		c, ok := s.columns[t.ColumnID]
		if !ok || c.BoardID != t.BoardID {
			continue
		}
		positions[c.ID] = append(positions[c.ID], t.Position)
		boardOf[c.ID] = c.BoardID
	}

	seen := map[string]bool{}
	var out []string
	for columnID, ps := range positions {
		slices.Sort(ps)
		for i, p := range ps {
			if p != i {
				if b := boardOf[columnID]; !seen[b] {
					seen[b] = true
					out = append(out, b)
				}
				break
			}
		}
	}

	slices.Sort(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
