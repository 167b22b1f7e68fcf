package boardsrepobridge

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/reorder"
)

// ColumnView is one column with its tasks in display order.
type ColumnView struct {
	board.Column
	Tasks []board.Task `json:"tasks"`
}

// BoardView is the GET board response.
type BoardView struct {
	BoardID string       `json:"board_id"`
	State   string       `json:"state"`
	Columns []ColumnView `json:"columns"`

	// Orphans are tasks whose column is not on the board any more.
	Orphans []board.Task `json:"orphans,omitempty"`
}

func (v BoardView) Encode() ([]byte, string, error) {
	data, err := json.Marshal(v)
	return data, "application/json", err
}

func toBoardView(boardID, state string, columns []board.Column, tasks []board.Task) BoardView {
	view := BoardView{
		BoardID: boardID,
		State:   state,
		Columns: make([]ColumnView, len(columns)),
	}

	known := make(map[string]bool, len(columns))
	for i, c := range columns {
		known[c.ID] = true
		view.Columns[i] = ColumnView{Column: c, Tasks: reorder.Column(tasks, c.ID)}
	}
	for _, t := range tasks {
		if !known[t.ColumnID] {
			view.Orphans = append(view.Orphans, t)
		}
	}
	return view
}

// MoveRequest is a drag end event: the dragged item and what it was dropped
// on.
type MoveRequest struct {
	ActiveID string `json:"active_id"`
	OverID   string `json:"over_id"`
}

func (m MoveRequest) Validate() error {
	var problems []string
	if strings.TrimSpace(m.ActiveID) == "" {
		problems = append(problems, "active_id is required")
	}
	if strings.TrimSpace(m.OverID) == "" {
		problems = append(problems, "over_id is required")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// MoveResponse reports a processed task drop.
type MoveResponse struct {
	Outcome string       `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
	Changed []board.Task `json:"changed"`
}

func (m MoveResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(m)
	return data, "application/json", err
}

// ColumnMoveResponse reports a processed column drop.
type ColumnMoveResponse struct {
	Outcome string         `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
	Changed []board.Column `json:"changed"`
}

func (m ColumnMoveResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(m)
	return data, "application/json", err
}

// WriteFailure is the error detail for a partially persisted move.
type WriteFailure struct {
	Failed    []string `json:"failed"`
	Succeeded []string `json:"succeeded"`
	Recovery  string   `json:"recovery"`
}

// CreateTaskRequest is the body for creating a task at the top of a column.
type CreateTaskRequest struct {
	ColumnID    string     `json:"column_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Type        string     `json:"type,omitempty"`
	AssignedTo  *string    `json:"assigned_to,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Estimation  *int       `json:"estimation,omitempty"`
}

func (c CreateTaskRequest) Validate() error {
	var problems []string
	if strings.TrimSpace(c.ColumnID) == "" {
		problems = append(problems, "column_id is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		problems = append(problems, "title is required")
	}
	if c.Type != "" {
		if _, err := board.ParseTaskType(c.Type); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// UpdateTaskRequest edits a task's content. Omitted fields keep their stored
// value. Version is the task version the client last saw.
type UpdateTaskRequest struct {
	Version     int64      `json:"version"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Type        *string    `json:"type,omitempty"`
	AssignedTo  *string    `json:"assigned_to,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Estimation  *int       `json:"estimation,omitempty"`
}

func (u UpdateTaskRequest) Validate() error {
	var problems []string
	if u.Version <= 0 {
		problems = append(problems, "version is required")
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		problems = append(problems, "title must not be blank")
	}
	if u.Type != nil {
		if _, err := board.ParseTaskType(*u.Type); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if u.Estimation != nil && *u.Estimation < 0 {
		problems = append(problems, "estimation must not be negative")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
