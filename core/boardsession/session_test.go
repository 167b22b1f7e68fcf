package boardsession

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/reorder"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo/stores/boardsmemstore"
	"github.com/jrazmi/kanban/sdk/logger"
)

// ============================================================================
// Fixtures
// ============================================================================

var errBoom = errors.New("boom")

// faultyStore injects failures and pauses around the in-memory store.
type faultyStore struct {
	*boardsmemstore.Store

	mu        sync.Mutex
	attempts  map[string]int
	failWrite func(p board.Placement, attempt int) error
	failList  error
	onList    func() // runs after each successful task list

	gate    chan struct{} // writes wait on it when set
	entered chan struct{} // signalled once per write when set
}

func (f *faultyStore) ListTasks(ctx context.Context, boardID string) ([]board.Task, error) {
	f.mu.Lock()
	err, hook := f.failList, f.onList
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	tasks, err := f.Store.ListTasks(ctx, boardID)
	if err == nil && hook != nil {
		hook()
	}
	return tasks, err
}

func (f *faultyStore) UpdateTaskPlacement(ctx context.Context, p board.Placement) (int64, error) {
	f.mu.Lock()
	f.attempts[p.TaskID]++
	attempt := f.attempts[p.TaskID]
	fail := f.failWrite
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if fail != nil {
		if err := fail(p, attempt); err != nil {
			return 0, err
		}
	}
	return f.Store.UpdateTaskPlacement(ctx, p)
}

func (f *faultyStore) attemptsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[id]
}

func (f *faultyStore) setFailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failList = err
}

var created = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// newBoard builds the To Do / In Progress / Done board with T1, T2 in To Do
// and T3 in Done.
func newBoard(t *testing.T) *faultyStore {
	t.Helper()
	mem := boardsmemstore.NewStore()
	mem.AddBoard(board.Board{ID: "b1", TeamID: "team", Name: "Board"})
	if err := mem.CreateColumns(context.Background(), []board.Column{
		{ID: "todo", BoardID: "b1", Name: "To Do", Position: 0},
		{ID: "doing", BoardID: "b1", Name: "In Progress", Position: 1},
		{ID: "done", BoardID: "b1", Name: "Done", Position: 2},
	}); err != nil {
		t.Fatalf("create columns: %v", err)
	}
	mem.PutTask(board.Task{ID: "T1", BoardID: "b1", ColumnID: "todo", Position: 0, Title: "T1", CreatedAt: created})
	mem.PutTask(board.Task{ID: "T2", BoardID: "b1", ColumnID: "todo", Position: 1, Title: "T2", CreatedAt: created})
	mem.PutTask(board.Task{ID: "T3", BoardID: "b1", ColumnID: "done", Position: 0, Title: "T3", CreatedAt: created})

	return &faultyStore{Store: mem, attempts: map[string]int{}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxRetryBackoff = time.Millisecond
	return cfg
}

func newSession(t *testing.T, store Store) *Session {
	t.Helper()
	log := logger.NewDefault(logger.WithOutput(io.Discard))
	return New(log, store, "b1", testConfig())
}

func placementOf(t *testing.T, tasks []board.Task, id string) (string, int) {
	t.Helper()
	i := slices.IndexFunc(tasks, func(x board.Task) bool { return x.ID == id })
	if i < 0 {
		t.Fatalf("task %s missing", id)
	}
	return tasks[i].ColumnID, tasks[i].Position
}

// ============================================================================
// Tests
// ============================================================================

func TestMovePersistsEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	s := newSession(t, store)

	out, err := s.Move(ctx, "T1", "T3")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if out.Kind != reorder.Move || len(out.Changed) != 3 {
		t.Fatalf("outcome = %+v", out)
	}
	for _, c := range out.Changed {
		if c.Version != 2 {
			t.Fatalf("changed %s version = %d, want 2", c.ID, c.Version)
		}
	}

	want := map[string]struct {
		col string
		pos int
	}{
		"T1": {"done", 0},
		"T2": {"todo", 0},
		"T3": {"done", 1},
	}
	for id, w := range want {
		row, _ := store.Task(id)
		if row.ColumnID != w.col || row.Position != w.pos {
			t.Fatalf("stored %s = %s:%d, want %s:%d", id, row.ColumnID, row.Position, w.col, w.pos)
		}
	}

	// The cached copy carries the new versions, so a second move does not
	// trip over its own writes.
	if _, err := s.Move(ctx, "T2", "done"); err != nil {
		t.Fatalf("second move: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("state = %s", s.State())
	}
}

func TestMoveNoOpWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	s := newSession(t, store)

	for _, tt := range []struct{ active, over string }{
		{"T1", "T1"},
		{"ghost", "T1"},
		{"T1", ""},
		{"T2", "todo"},
	} {
		out, err := s.Move(ctx, tt.active, tt.over)
		if err != nil {
			t.Fatalf("move %s onto %s: %v", tt.active, tt.over, err)
		}
		if out.Kind != reorder.NoOp || out.Reason == reorder.ReasonNone {
			t.Fatalf("move %s onto %s: outcome = %+v", tt.active, tt.over, out)
		}
	}

	for _, id := range []string{"T1", "T2", "T3"} {
		if n := store.attemptsFor(id); n != 0 {
			t.Fatalf("%s written %d times", id, n)
		}
	}
}

func TestMoveInFlightIsRejected(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	store.gate = make(chan struct{})
	store.entered = make(chan struct{}, 8)
	s := newSession(t, store)

	done := make(chan error, 1)
	go func() {
		_, err := s.Move(ctx, "T1", "T3")
		done <- err
	}()

	<-store.entered

	if got := s.State(); got != Persisting {
		t.Fatalf("state = %s, want persisting", got)
	}
	if _, err := s.Move(ctx, "T2", "T3"); !errors.Is(err, ErrMoveInFlight) {
		t.Fatalf("expected ErrMoveInFlight, got %v", err)
	}
	if _, _, err := s.Load(ctx); !errors.Is(err, ErrMoveInFlight) {
		t.Fatalf("expected ErrMoveInFlight from load, got %v", err)
	}

	// Readers see the optimistic state while the writes are pending.
	_, tasks := s.Snapshot()
	if col, pos := placementOf(t, tasks, "T1"); col != "done" || pos != 0 {
		t.Fatalf("optimistic T1 = %s:%d", col, pos)
	}

	close(store.gate)
	if err := <-done; err != nil {
		t.Fatalf("move: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("state = %s, want idle", s.State())
	}
}

func TestLoadFetchError(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	store.setFailList(errBoom)
	s := newSession(t, store)

	_, _, err := s.Load(ctx)
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if !errors.Is(err, errBoom) || ferr.Op != "list tasks" {
		t.Fatalf("fetch error = %+v", ferr)
	}
	if s.Loaded() {
		t.Fatal("session marked loaded after a failed fetch")
	}

	if _, err := s.Move(ctx, "T1", "T3"); !errors.As(err, &ferr) {
		t.Fatalf("move on unreadable board: %v", err)
	}
}

func TestCommitPartialFailureResyncs(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	store.failWrite = func(p board.Placement, attempt int) error {
		if p.TaskID == "T2" {
			return errBoom
		}
		return nil
	}
	s := newSession(t, store)

	_, err := s.Move(ctx, "T1", "T3")
	var werr *PlacementWriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected *PlacementWriteError, got %v", err)
	}
	if !slices.Equal(werr.Failed, []string{"T2"}) {
		t.Fatalf("failed = %v", werr.Failed)
	}
	if werr.Recovery != Resynced {
		t.Fatalf("recovery = %s", werr.Recovery)
	}
	if !errors.Is(err, errBoom) {
		t.Fatal("cause not reachable through errors.Is")
	}
	if n := store.attemptsFor("T2"); n != testConfig().WriteAttempts {
		t.Fatalf("T2 attempts = %d", n)
	}

	// The cache now mirrors the store: T1 and T3 moved, T2 did not.
	_, tasks := s.Snapshot()
	stored, _ := store.ListTasks(ctx, "b1")
	for _, id := range []string{"T1", "T2", "T3"} {
		gc, gp := placementOf(t, tasks, id)
		sc, sp := placementOf(t, stored, id)
		if gc != sc || gp != sp {
			t.Fatalf("%s cached %s:%d, stored %s:%d", id, gc, gp, sc, sp)
		}
	}
	if col, pos := placementOf(t, tasks, "T2"); col != "todo" || pos != 1 {
		t.Fatalf("T2 = %s:%d, want todo:1", col, pos)
	}
	if s.State() != Idle {
		t.Fatalf("state = %s", s.State())
	}
}

func TestCommitRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	store.failWrite = func(p board.Placement, attempt int) error {
		if p.TaskID == "T1" && attempt == 1 {
			return errBoom
		}
		return nil
	}
	s := newSession(t, store)

	if _, err := s.Move(ctx, "T1", "T3"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if n := store.attemptsFor("T1"); n != 2 {
		t.Fatalf("T1 attempts = %d, want 2", n)
	}
}

func TestCommitStaleVersionIsNotRetried(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	s := newSession(t, store)

	if _, _, err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	// Another client moves T3 after this session read the board.
	row, _ := store.Task("T3")
	row.Version = 7
	store.PutTask(row)

	_, err := s.Move(ctx, "T1", "T3")
	if !errors.Is(err, boardsrepo.ErrStalePlacement) {
		t.Fatalf("expected stale placement, got %v", err)
	}
	var werr *PlacementWriteError
	if !errors.As(err, &werr) || !slices.Equal(werr.Failed, []string{"T3"}) {
		t.Fatalf("write error = %+v", werr)
	}
	if n := store.attemptsFor("T3"); n != 1 {
		t.Fatalf("stale write retried %d times", n)
	}

	_, tasks := s.Snapshot()
	i := slices.IndexFunc(tasks, func(x board.Task) bool { return x.ID == "T3" })
	if tasks[i].Version != 7 {
		t.Fatalf("resync did not pick up the new version: %d", tasks[i].Version)
	}
}

func TestCommitRollsBackWhenResyncFails(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	s := newSession(t, store)

	_, before, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	store.failWrite = func(board.Placement, int) error { return errBoom }
	store.setFailList(errBoom)

	_, err = s.Move(ctx, "T1", "T3")
	var werr *PlacementWriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected *PlacementWriteError, got %v", err)
	}
	if werr.Recovery != RolledBack {
		t.Fatalf("recovery = %s", werr.Recovery)
	}
	if len(werr.Failed) != 3 || len(werr.Succeeded) != 0 {
		t.Fatalf("failed=%v succeeded=%v", werr.Failed, werr.Succeeded)
	}

	_, after := s.Snapshot()
	for _, tk := range before {
		col, pos := placementOf(t, after, tk.ID)
		if col != tk.ColumnID || pos != tk.Position {
			t.Fatalf("%s = %s:%d after rollback, want %s:%d", tk.ID, col, pos, tk.ColumnID, tk.Position)
		}
	}
}

func TestCommitCancelledContext(t *testing.T) {
	store := newBoard(t)
	s := newSession(t, store)

	if _, _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Move(ctx, "T1", "T3")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// Resync runs detached from the cancelled request.
	var werr *PlacementWriteError
	if !errors.As(err, &werr) || werr.Recovery != Resynced {
		t.Fatalf("write error = %+v", werr)
	}
}

func TestMoveColumn(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	s := newSession(t, store)

	out, err := s.MoveColumn(ctx, "done", "todo")
	if err != nil {
		t.Fatalf("move column: %v", err)
	}
	if out.Kind != reorder.Move || len(out.Changed) != 3 {
		t.Fatalf("outcome = %+v", out)
	}

	cols, err := store.ListColumns(ctx, "b1")
	if err != nil {
		t.Fatalf("list columns: %v", err)
	}
	var order []string
	for _, c := range cols {
		order = append(order, c.ID)
	}
	if !slices.Equal(order, []string{"done", "todo", "doing"}) {
		t.Fatalf("column order = %v", order)
	}

	out, err = s.MoveColumn(ctx, "done", "done")
	if err != nil || out.Kind != reorder.NoOp {
		t.Fatalf("self drop = %+v, %v", out, err)
	}
}

func TestManager(t *testing.T) {
	store := newBoard(t)
	cfg := testConfig()
	cfg.IdleTTL = time.Minute
	m := NewManager(logger.NewDefault(logger.WithOutput(io.Discard)), store, cfg)

	a := m.Session("b1")
	if m.Session("b1") != a {
		t.Fatal("manager returned a second session for the same board")
	}
	m.Session("b2")
	if m.Len() != 2 {
		t.Fatalf("len = %d", m.Len())
	}

	if n := m.Sweep(time.Now()); n != 0 {
		t.Fatalf("swept %d fresh sessions", n)
	}
	if n := m.Sweep(time.Now().Add(2 * time.Minute)); n != 2 {
		t.Fatalf("swept %d, want 2", n)
	}

	b1 := m.Session("b1")
	m.Discard("b1")
	if m.Len() != 1 || m.Session("b1") != b1 {
		t.Fatal("discard replaced the session instead of invalidating it")
	}
	m.Discard("unknown")
	if m.Len() != 1 {
		t.Fatalf("len = %d after discarding an unknown board", m.Len())
	}
}

func TestDiscardKeepsSessionBusy(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	store.gate = make(chan struct{})
	store.entered = make(chan struct{}, 8)
	m := NewManager(logger.NewDefault(logger.WithOutput(io.Discard)), store, testConfig())

	s := m.Session("b1")
	if _, _, err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Move(ctx, "T1", "T3")
		done <- err
	}()
	<-store.entered

	// A task created elsewhere invalidates the board mid-move.
	m.Discard("b1")

	if m.Session("b1") != s {
		t.Fatal("discard during a move handed out a second session")
	}
	if _, err := m.Session("b1").Move(ctx, "T2", "T3"); !errors.Is(err, ErrMoveInFlight) {
		t.Fatalf("expected ErrMoveInFlight, got %v", err)
	}
	if !s.Cached() {
		t.Fatal("optimistic view dropped by discard")
	}

	close(store.gate)
	if err := <-done; err != nil {
		t.Fatalf("move: %v", err)
	}
	if s.Loaded() {
		t.Fatal("session still fresh after discard")
	}

	if _, _, err := s.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !s.Loaded() {
		t.Fatal("reload did not clear the stale mark")
	}
}

func TestInvalidateDuringLoadStaysStale(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	s := newSession(t, store)

	store.onList = func() { s.Invalidate() }
	if _, _, err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Loaded() {
		t.Fatal("a load racing Invalidate marked the session fresh")
	}

	store.onList = nil
	if _, _, err := s.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !s.Loaded() {
		t.Fatal("second load left the session stale")
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{RetryBackoff: 10 * time.Millisecond, MaxRetryBackoff: 25 * time.Millisecond}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
	for i, w := range want {
		if got := cfg.backoff(i + 2); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+2, got, w)
		}
	}
}

func TestApplyReorderIsLocalOnly(t *testing.T) {
	ctx := context.Background()
	store := newBoard(t)
	s := newSession(t, store)
	if _, _, err := s.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cols, tasks := s.Snapshot()
	res := reorder.Resolve(cols, tasks, "T2", "T1")
	s.ApplyReorder(res.Tasks)

	// The caller's slice is copied.
	res.Tasks[0].Position = 99

	_, got := s.Snapshot()
	if col, pos := placementOf(t, got, "T2"); col != "todo" || pos != 0 {
		t.Errorf("T2 = %s/%d, want todo/0", col, pos)
	}
	if col, pos := placementOf(t, got, "T1"); col != "todo" || pos != 1 {
		t.Errorf("T1 = %s/%d, want todo/1", col, pos)
	}

	stored, _ := store.Task("T2")
	if stored.Position != 1 {
		t.Errorf("store position for T2 = %d, want 1 until Commit", stored.Position)
	}
	if s.State() != Idle {
		t.Errorf("State() = %v, want Idle", s.State())
	}
}
