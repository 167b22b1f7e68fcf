package boardsrepobridge

import (
	"context"
	"errors"
	"net/http"

	"github.com/jrazmi/kanban/bridge/scaffolding/errs"
	"github.com/jrazmi/kanban/bridge/scaffolding/mid"
	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/boardsession"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
	"github.com/jrazmi/kanban/infrastructure/web"
	"github.com/jrazmi/kanban/sdk/logger"
)

type bridge struct {
	log        *logger.Logger
	repository *boardsrepo.Repository
	sessions   *boardsession.Manager
	newID      func() string
}

func newBridge(cfg Config) *bridge {
	return &bridge{
		log:        cfg.Log,
		repository: cfg.Repository,
		sessions:   cfg.Sessions,
		newID:      cfg.NewID,
	}
}

// httpGetBoard returns the board from its session, loading it on first use
// or when ?refresh=true.
func (b *bridge) httpGetBoard(ctx context.Context, r *http.Request) web.Encoder {
	boardID := web.Param(r, "board_id")
	sess := b.sessions.Session(boardID)

	if !sess.Loaded() || web.QueryBool(r, "refresh") {
		if _, _, err := sess.Load(ctx); err != nil {
			// A move in flight already holds fresh rows; serve its view.
			if !errors.Is(err, boardsession.ErrMoveInFlight) || !sess.Cached() {
				return b.sessionError(err)
			}
			b.log.InfoContext(ctx, "serving optimistic board during move", "board_id", boardID)
		}
	}

	cols, tasks := sess.Snapshot()
	return toBoardView(boardID, sess.State().String(), cols, tasks)
}

func (b *bridge) httpMoveTask(ctx context.Context, r *http.Request) web.Encoder {
	var req MoveRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	out, err := b.sessions.Session(web.Param(r, "board_id")).Move(ctx, req.ActiveID, req.OverID)
	if err != nil {
		return b.sessionError(err)
	}

	changed := out.Changed
	if changed == nil {
		changed = []board.Task{}
	}
	return MoveResponse{
		Outcome: out.Kind.String(),
		Reason:  string(out.Reason),
		Changed: changed,
	}
}

func (b *bridge) httpMoveColumn(ctx context.Context, r *http.Request) web.Encoder {
	var req MoveRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	out, err := b.sessions.Session(web.Param(r, "board_id")).MoveColumn(ctx, req.ActiveID, req.OverID)
	if err != nil {
		return b.sessionError(err)
	}

	changed := out.Changed
	if changed == nil {
		changed = []board.Column{}
	}
	return ColumnMoveResponse{
		Outcome: out.Kind.String(),
		Reason:  string(out.Reason),
		Changed: changed,
	}
}

// httpCreateTask adds a task at the top of a column. The board's session is
// invalidated so the next read sees the shifted column.
func (b *bridge) httpCreateTask(ctx context.Context, r *http.Request) web.Encoder {
	boardID := web.Param(r, "board_id")

	var req CreateTaskRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	m, err := mid.GetMembership(ctx)
	if err != nil {
		return errs.New(errs.Internal, err)
	}
	createdBy := m.UserID

	task, err := b.repository.CreateTask(ctx, boardsrepo.NewTask{
		ID:          b.newID(),
		BoardID:     boardID,
		ColumnID:    req.ColumnID,
		Title:       req.Title,
		Description: req.Description,
		Type:        board.TaskType(req.Type),
		AssignedTo:  req.AssignedTo,
		DueDate:     req.DueDate,
		CreatedBy:   &createdBy,
		Estimation:  req.Estimation,
	})
	if err != nil {
		switch {
		case errors.Is(err, boardsrepo.ErrInvalidTask):
			return errs.New(errs.InvalidArgument, err)
		case errors.Is(err, boardsrepo.ErrColumnNotFound):
			return errs.Newf(errs.NotFound, "column %s not found", req.ColumnID)
		}
		return errs.New(errs.Internal, err)
	}

	b.sessions.Discard(boardID)
	return web.NewCreated(task)
}

func (b *bridge) httpUpdateTask(ctx context.Context, r *http.Request) web.Encoder {
	boardID := web.Param(r, "board_id")
	taskID := web.Param(r, "task_id")

	var req UpdateTaskRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	update := boardsrepo.TaskUpdate{
		ID:          taskID,
		BoardID:     boardID,
		Version:     req.Version,
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
		DueDate:     req.DueDate,
		Estimation:  req.Estimation,
	}
	if req.Type != nil {
		typ := board.TaskType(*req.Type)
		update.Type = &typ
	}

	task, err := b.repository.UpdateTask(ctx, update)
	if err != nil {
		return b.taskError(taskID, err)
	}

	b.sessions.Discard(boardID)
	return web.NewJSONResponse(task)
}

// httpDeleteTask removes a task and closes the gap in its column.
func (b *bridge) httpDeleteTask(ctx context.Context, r *http.Request) web.Encoder {
	boardID := web.Param(r, "board_id")
	taskID := web.Param(r, "task_id")

	if err := b.repository.DeleteTask(ctx, boardID, taskID); err != nil {
		return b.taskError(taskID, err)
	}

	b.sessions.Discard(boardID)
	return nil
}

// taskError maps single-task edit failures. A stale version is a conflict
// the client resolves by reloading the board.
func (b *bridge) taskError(taskID string, err error) web.Encoder {
	switch {
	case errors.Is(err, boardsrepo.ErrInvalidTask):
		return errs.New(errs.InvalidArgument, err)
	case errors.Is(err, boardsrepo.ErrTaskNotFound):
		return errs.Newf(errs.NotFound, "task %s not found", taskID)
	case errors.Is(err, boardsrepo.ErrStalePlacement):
		return errs.Newf(errs.Aborted, "task %s was changed by someone else", taskID)
	}
	return errs.New(errs.Internal, err)
}

// sessionError maps session failures to responses. Stale rows mean another
// client moved first, which the caller resolves by reloading, so they share
// the in-flight conflict status.
func (b *bridge) sessionError(err error) web.Encoder {
	if errors.Is(err, boardsession.ErrMoveInFlight) {
		return errs.New(errs.Aborted, err)
	}

	var fetchErr *boardsession.FetchError
	if errors.As(err, &fetchErr) {
		return errs.Newf(errs.Unavailable, "board %s could not be loaded", fetchErr.BoardID)
	}

	var writeErr *boardsession.PlacementWriteError
	if errors.As(err, &writeErr) {
		detail := WriteFailure{
			Failed:    writeErr.Failed,
			Succeeded: writeErr.Succeeded,
			Recovery:  writeErr.Recovery.String(),
		}
		if detail.Succeeded == nil {
			detail.Succeeded = []string{}
		}

		code := errs.Upstream
		if onlyStale(writeErr.Err) {
			code = errs.Aborted
		}
		return errs.Newf(code, "%d placement writes failed", len(writeErr.Failed)).WithDetails(detail)
	}

	return errs.New(errs.Internal, err)
}

// onlyStale reports whether every cause joined into err is a stale
// placement.
func onlyStale(err error) bool {
	if err == nil {
		return false
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return errors.Is(err, boardsrepo.ErrStalePlacement)
	}
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, boardsrepo.ErrStalePlacement) {
			return false
		}
	}
	return true
}
