// Package board holds the value types shared by the reconciler, the board
// session and the task store.
package board

import (
	"fmt"
	"time"
)

// TaskType classifies a task.
type TaskType string

// Set of task types.
const (
	TypeTask    TaskType = "Task"
	TypeBug     TaskType = "Bug"
	TypeFeature TaskType = "Feature"
	TypeStory   TaskType = "Story"
)

// ParseTaskType validates s against the known task types.
func ParseTaskType(s string) (TaskType, error) {
	switch t := TaskType(s); t {
	case TypeTask, TypeBug, TypeFeature, TypeStory:
		return t, nil
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Board is a team scoped container of columns and tasks.
type Board struct {
	ID     string `db:"id" json:"id"`
	TeamID string `db:"team_id" json:"team_id"`
	Name   string `db:"name" json:"name"`
}

// Column is an ordered bucket of tasks within a board.
type Column struct {
	ID       string `db:"id" json:"id"`
	BoardID  string `db:"board_id" json:"board_id"`
	Name     string `db:"name" json:"name"`
	Position int    `db:"position" json:"position"`
}

// Task is a unit of work positioned within a column. Position is a dense,
// zero based rank inside ColumnID.
type Task struct {
	ID          string     `db:"id" json:"id"`
	BoardID     string     `db:"board_id" json:"board_id"`
	ColumnID    string     `db:"column_id" json:"column_id"`
	Position    int        `db:"position" json:"position"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	Type        TaskType   `db:"type" json:"type"`
	AssignedTo  *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	CreatedBy   *string    `db:"created_by" json:"created_by,omitempty"`
	Estimation  *int       `db:"estimation" json:"estimation,omitempty"`
	Version     int64      `db:"version" json:"version"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Placement is the payload of a single row write: where a task should live
// and which row version the write was computed against.
type Placement struct {
	TaskID   string `json:"task_id"`
	BoardID  string `json:"board_id"`
	ColumnID string `json:"column_id"`
	Position int    `json:"position"`
	Version  int64  `json:"version"`
}

// PlacementOf captures the current placement of t.
func PlacementOf(t Task) Placement {
	return Placement{
		TaskID:   t.ID,
		BoardID:  t.BoardID,
		ColumnID: t.ColumnID,
		Position: t.Position,
		Version:  t.Version,
	}
}

// ColumnPlacement is the payload of a single column position write.
type ColumnPlacement struct {
	ColumnID string `json:"column_id"`
	BoardID  string `json:"board_id"`
	Position int    `json:"position"`
}

// CloneTasks returns a shallow copy of tasks. Pointer fields are shared, the
// placement fields are not.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}

// CloneColumns returns a copy of columns.
func CloneColumns(columns []Column) []Column {
	if columns == nil {
		return nil
	}
	out := make([]Column, len(columns))
	copy(out, columns)
	return out
}
