package boardsmemstore_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo/stores/boardsmemstore"
)

func seeded(t *testing.T) *boardsmemstore.Store {
	t.Helper()
	s := boardsmemstore.NewStore()
	s.AddBoard(board.Board{ID: "b1", TeamID: "team", Name: "Board"})
	if err := s.CreateColumns(context.Background(), []board.Column{
		{ID: "todo", BoardID: "b1", Name: "To Do", Position: 0},
		{ID: "done", BoardID: "b1", Name: "Done", Position: 1},
	}); err != nil {
		t.Fatalf("create columns: %v", err)
	}
	return s
}

func TestUpdateTaskPlacementChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	s.PutTask(board.Task{ID: "t1", BoardID: "b1", ColumnID: "todo", Position: 0})

	v, err := s.UpdateTaskPlacement(ctx, board.Placement{TaskID: "t1", BoardID: "b1", ColumnID: "done", Position: 0, Version: 1})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if v != 2 {
		t.Fatalf("version = %d, want 2", v)
	}

	_, err = s.UpdateTaskPlacement(ctx, board.Placement{TaskID: "t1", BoardID: "b1", ColumnID: "todo", Position: 0, Version: 1})
	if !errors.Is(err, boardsrepo.ErrStalePlacement) {
		t.Fatalf("expected stale placement, got %v", err)
	}

	_, err = s.UpdateTaskPlacement(ctx, board.Placement{TaskID: "missing", BoardID: "b1", Version: 1})
	if !errors.Is(err, boardsrepo.ErrTaskNotFound) {
		t.Fatalf("expected task not found, got %v", err)
	}

	got, _ := s.Task("t1")
	if got.ColumnID != "done" || got.Version != 2 {
		t.Fatalf("stored task = %+v", got)
	}
}

func TestCreateTaskGoesToTop(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.CreateTask(ctx, boardsrepo.NewTask{ID: id, BoardID: "b1", ColumnID: "todo", Title: id, Type: board.TypeTask}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	tasks, err := s.ListTasks(ctx, "b1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var order []string
	for _, tk := range tasks {
		order = append(order, tk.ID)
	}
	if want := []string{"c", "b", "a"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestListCorruptBoards(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	s.PutTask(board.Task{ID: "a", BoardID: "b1", ColumnID: "todo", Position: 0})
	s.PutTask(board.Task{ID: "b", BoardID: "b1", ColumnID: "todo", Position: 1})
	s.PutTask(board.Task{ID: "orphan", BoardID: "b1", ColumnID: "gone", Position: 9})

	ids, err := s.ListCorruptBoards(ctx, 10)
	if err != nil {
		t.Fatalf("list corrupt: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("healthy board reported corrupt: %v", ids)
	}

	s.PutTask(board.Task{ID: "c", BoardID: "b1", ColumnID: "done", Position: 3})

	ids, err = s.ListCorruptBoards(ctx, 10)
	if err != nil {
		t.Fatalf("list corrupt: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"b1"}) {
		t.Fatalf("corrupt = %v", ids)
	}
}

func TestGetMembership(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	s.AddMember(board.TeamMembership{UserID: "u1", TeamID: "team", Role: board.RoleUser})
	s.AddMember(board.TeamMembership{UserID: "u1", TeamID: "team", Role: board.RoleAdmin})

	m, err := s.GetMembership(ctx, "b1", "u1")
	if err != nil {
		t.Fatalf("membership: %v", err)
	}
	if !m.IsAdmin() {
		t.Fatalf("role = %s, want admin after replace", m.Role)
	}

	if _, err := s.GetMembership(ctx, "b1", "stranger"); !errors.Is(err, board.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if _, err := s.GetMembership(ctx, "nope", "u1"); !errors.Is(err, boardsrepo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTaskKeepsColumnDense(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	for i, id := range []string{"a", "b", "c", "d"} {
		s.PutTask(board.Task{ID: id, BoardID: "b1", ColumnID: "todo", Position: i})
	}
	s.PutTask(board.Task{ID: "x", BoardID: "b1", ColumnID: "done", Position: 0})

	if err := s.DeleteTask(ctx, "b1", "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTask(ctx, "b1", "b"); !errors.Is(err, boardsrepo.ErrTaskNotFound) {
		t.Fatalf("expected task not found, got %v", err)
	}
	if err := s.DeleteTask(ctx, "other", "a"); !errors.Is(err, boardsrepo.ErrTaskNotFound) {
		t.Fatalf("delete across boards: got %v", err)
	}

	tasks, err := s.ListTasks(ctx, "b1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := map[string]int{}
	for _, tk := range tasks {
		got[tk.ID] = tk.Position
	}
	want := map[string]int{"a": 0, "c": 1, "d": 2, "x": 0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("positions = %v, want %v", got, want)
	}

	// Shifted rows get a new version so cached placements go stale.
	if c, _ := s.Task("c"); c.Version != 2 {
		t.Fatalf("shifted version = %d, want 2", c.Version)
	}
	if a, _ := s.Task("a"); a.Version != 1 {
		t.Fatalf("unshifted version = %d, want 1", a.Version)
	}

	corrupt, err := s.ListCorruptBoards(ctx, 10)
	if err != nil || len(corrupt) != 0 {
		t.Fatalf("corrupt = %v, %v", corrupt, err)
	}
}

func TestUpdateTaskEditsContent(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	s.PutTask(board.Task{ID: "t1", BoardID: "b1", ColumnID: "todo", Position: 3, Title: "old", Type: board.TypeTask})

	title := "new"
	bug := board.TypeBug
	got, err := s.UpdateTask(ctx, boardsrepo.TaskUpdate{ID: "t1", BoardID: "b1", Version: 1, Title: &title, Type: &bug})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "new" || got.Type != board.TypeBug || got.Version != 2 {
		t.Fatalf("updated = %+v", got)
	}
	if got.ColumnID != "todo" || got.Position != 3 {
		t.Fatalf("update moved the task to %s:%d", got.ColumnID, got.Position)
	}

	if _, err := s.UpdateTask(ctx, boardsrepo.TaskUpdate{ID: "t1", BoardID: "b1", Version: 1, Title: &title}); !errors.Is(err, boardsrepo.ErrStalePlacement) {
		t.Fatalf("expected stale, got %v", err)
	}
	if _, err := s.UpdateTask(ctx, boardsrepo.TaskUpdate{ID: "nope", BoardID: "b1", Version: 1}); !errors.Is(err, boardsrepo.ErrTaskNotFound) {
		t.Fatalf("expected task not found, got %v", err)
	}
}
