package boardsrepo_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo/stores/boardsmemstore"
	"github.com/jrazmi/kanban/sdk/logger"
)

func newRepo(t *testing.T) (*boardsrepo.Repository, *boardsmemstore.Store) {
	t.Helper()
	store := boardsmemstore.NewStore()
	store.AddBoard(board.Board{ID: "b1", TeamID: "team", Name: "Board"})
	store.AddBoard(board.Board{ID: "b2", TeamID: "team", Name: "Empty"})
	if err := store.CreateColumns(context.Background(), []board.Column{{ID: "c1", BoardID: "b1", Name: "To Do"}}); err != nil {
		t.Fatalf("create columns: %v", err)
	}
	log := logger.NewDefault(logger.WithOutput(&bytes.Buffer{}))
	return boardsrepo.NewRepository(log, store), store
}

func TestSeedDefaultColumns(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	n := 0
	newID := func() string {
		n++
		return fmt.Sprintf("col-%d", n)
	}

	cols, err := repo.SeedDefaultColumns(ctx, "b2", newID)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("columns = %d, want 3", len(cols))
	}
	for i, c := range cols {
		if c.Position != i || c.Name != board.DefaultColumnNames[i] {
			t.Fatalf("column %d = %+v", i, c)
		}
	}

	// Second call leaves the board alone.
	again, err := repo.SeedDefaultColumns(ctx, "b2", newID)
	if err != nil {
		t.Fatalf("seed again: %v", err)
	}
	if len(again) != 3 || n != 3 {
		t.Fatalf("reseeded: %d columns, %d ids", len(again), n)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	neg := -1
	tests := []struct {
		name string
		in   boardsrepo.NewTask
		ok   bool
	}{
		{"valid, default type", boardsrepo.NewTask{ID: "t1", BoardID: "b1", ColumnID: "c1", Title: "Write"}, true},
		{"missing title", boardsrepo.NewTask{ID: "t2", BoardID: "b1", ColumnID: "c1", Title: "  "}, false},
		{"bad type", boardsrepo.NewTask{ID: "t3", BoardID: "b1", ColumnID: "c1", Title: "x", Type: "Epic"}, false},
		{"negative estimation", boardsrepo.NewTask{ID: "t4", BoardID: "b1", ColumnID: "c1", Title: "x", Estimation: &neg}, false},
		{"missing column", boardsrepo.NewTask{ID: "t5", BoardID: "b1", Title: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := repo.CreateTask(ctx, tt.in)
			if tt.ok {
				if err != nil {
					t.Fatalf("create: %v", err)
				}
				if task.Type != board.TypeTask || task.Position != 0 {
					t.Fatalf("task = %+v", task)
				}
				return
			}
			if !errors.Is(err, boardsrepo.ErrInvalidTask) {
				t.Fatalf("expected ErrInvalidTask, got %v", err)
			}
		})
	}
}

func TestCreateTaskUnknownColumn(t *testing.T) {
	repo, _ := newRepo(t)

	_, err := repo.CreateTask(context.Background(), boardsrepo.NewTask{ID: "t1", BoardID: "b1", ColumnID: "gone", Title: "x"})
	if !errors.Is(err, boardsrepo.ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestUpdateTaskPlacementWrapsStale(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t)
	store.PutTask(board.Task{ID: "t1", BoardID: "b1", ColumnID: "c1", Version: 4})

	_, err := repo.UpdateTaskPlacement(ctx, board.Placement{TaskID: "t1", BoardID: "b1", ColumnID: "c1", Version: 3})
	if !errors.Is(err, boardsrepo.ErrStalePlacement) {
		t.Fatalf("expected stale, got %v", err)
	}
}

func TestUpdateTaskValidation(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t)
	store.PutTask(board.Task{ID: "t1", BoardID: "b1", ColumnID: "c1", Title: "one"})

	blank := "  "
	bad := board.TaskType("chore")
	negative := -1

	tests := []struct {
		name string
		in   boardsrepo.TaskUpdate
	}{
		{"no version", boardsrepo.TaskUpdate{ID: "t1", BoardID: "b1"}},
		{"no id", boardsrepo.TaskUpdate{BoardID: "b1", Version: 1}},
		{"blank title", boardsrepo.TaskUpdate{ID: "t1", BoardID: "b1", Version: 1, Title: &blank}},
		{"bad type", boardsrepo.TaskUpdate{ID: "t1", BoardID: "b1", Version: 1, Type: &bad}},
		{"negative estimation", boardsrepo.TaskUpdate{ID: "t1", BoardID: "b1", Version: 1, Estimation: &negative}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.UpdateTask(ctx, tt.in); !errors.Is(err, boardsrepo.ErrInvalidTask) {
				t.Fatalf("expected ErrInvalidTask, got %v", err)
			}
		})
	}

	if got, _ := store.Task("t1"); got.Version != 1 || got.Title != "one" {
		t.Fatalf("rejected updates reached the store: %+v", got)
	}
}

func TestDeleteTaskWrapsNotFound(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t)
	store.PutTask(board.Task{ID: "t1", BoardID: "b1", ColumnID: "c1"})

	if err := repo.DeleteTask(ctx, "b1", "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.Task("t1"); ok {
		t.Fatal("task still stored")
	}
	if err := repo.DeleteTask(ctx, "b1", "t1"); !errors.Is(err, boardsrepo.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}
