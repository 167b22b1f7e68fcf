// Package reorder computes task and column orderings after a drag and drop.
//
// Everything here is pure: functions take the current board state and a drop
// event, and return a tagged Result describing either a no-op or the new full
// task list together with the rows whose placement changed. Inputs are never
// modified.
//
// Within a column, tasks are ordered by position, then by creation time, then
// by their order in the input slice. The secondary keys only matter when the
// stored positions are corrupt (duplicates), which can happen because
// placement writes are not atomic across rows.
package reorder

import (
	"cmp"
	"slices"

	"github.com/jrazmi/kanban/core/board"
)

// Kind tags a Result.
type Kind int

// Set of result kinds.
const (
	NoOp Kind = iota
	Move
)

func (k Kind) String() string {
	if k == Move {
		return "moved"
	}
	return "noop"
}

// Reason explains why a drop resolved to NoOp.
type Reason string

// Set of no-op reasons.
const (
	ReasonNone          Reason = ""
	ReasonUnknownActive Reason = "dragged item not found"
	ReasonSelfDrop      Reason = "dropped onto itself"
	ReasonUnknownTarget Reason = "drop target not found"
	ReasonUnknownSource Reason = "dragged item belongs to an unknown column"
	ReasonUnchanged     Reason = "drop leaves order unchanged"
)

// Result is the outcome of resolving a task drop.
type Result struct {
	Kind   Kind
	Reason Reason

	// Tasks is the full task list after the move, in input order. For NoOp it
	// is the input slice itself.
	Tasks []board.Task

	// Changed holds the tasks whose column or position differs from the input,
	// ordered by column (source first) and new position. Empty for NoOp.
	Changed []board.Task

	SourceColumnID string
	TargetColumnID string
}

// Placements returns the store writes needed to persist r. Each placement
// carries the version of the row as it was read.
func (r Result) Placements() []board.Placement {
	out := make([]board.Placement, len(r.Changed))
	for i, t := range r.Changed {
		out[i] = board.PlacementOf(t)
	}
	return out
}

// Resolve applies the drop of activeID onto overID.
//
// overID names either a task, in which case the dragged task takes that
// task's slot, or a column, in which case the dragged task goes to the end of
// that column. Drops that cannot be resolved are returned as NoOp with a
// Reason; Resolve never fails.
func Resolve(columns []board.Column, tasks []board.Task, activeID, overID string) Result {
	noop := func(reason Reason) Result {
		return Result{Kind: NoOp, Reason: reason, Tasks: tasks}
	}

	if activeID == "" {
		return noop(ReasonUnknownActive)
	}
	if activeID == overID {
		return noop(ReasonSelfDrop)
	}

	activeIdx := indexOfTask(tasks, activeID)
	if activeIdx < 0 {
		return noop(ReasonUnknownActive)
	}

	known := columnSet(columns)
	sourceID := tasks[activeIdx].ColumnID
	if !known[sourceID] {
		return noop(ReasonUnknownSource)
	}

	targetID, overIdx, ok := resolveTarget(known, tasks, overID)
	if !ok {
		return noop(ReasonUnknownTarget)
	}

	var (
		out      = board.CloneTasks(tasks)
		affected [][]int
	)

	if sourceID == targetID {
		order := columnOrder(tasks, sourceID)

		from := slices.Index(order, activeIdx)
		to := len(order) - 1
		if overIdx >= 0 {
			to = slices.Index(order, overIdx)
		}
		if from < 0 || to < 0 || from == to {
			return noop(ReasonUnchanged)
		}

		order = arrayMove(order, from, to)
		renumber(out, order)
		affected = [][]int{order}
	} else {
		source := slices.DeleteFunc(columnOrder(tasks, sourceID), func(i int) bool { return i == activeIdx })
		target := columnOrder(tasks, targetID)

		at := len(target)
		if overIdx >= 0 {
			at = slices.Index(target, overIdx)
		}
		target = slices.Insert(target, at, activeIdx)

		out[activeIdx].ColumnID = targetID
		renumber(out, source)
		renumber(out, target)
		affected = [][]int{source, target}
	}

	changed := diff(tasks, out, affected...)
	if len(changed) == 0 {
		return noop(ReasonUnchanged)
	}

	return Result{
		Kind:           Move,
		Tasks:          out,
		Changed:        changed,
		SourceColumnID: sourceID,
		TargetColumnID: targetID,
	}
}

// NormalizeTasks renumbers every known column densely from zero using the
// package ordering. Tasks in unknown columns are left alone. It returns the
// full task list and the tasks whose position changed.
func NormalizeTasks(columns []board.Column, tasks []board.Task) ([]board.Task, []board.Task) {
	out := board.CloneTasks(tasks)

	var affected [][]int
	for _, c := range sortedColumns(columns) {
		order := columnOrder(tasks, c.ID)
		renumber(out, order)
		affected = append(affected, order)
	}

	return out, diff(tasks, out, affected...)
}

// BrokenColumns returns the ids of known columns whose task positions are not
// exactly 0..n-1, in column order.
func BrokenColumns(columns []board.Column, tasks []board.Task) []string {
	var broken []string
	for _, c := range sortedColumns(columns) {
		order := columnOrder(tasks, c.ID)
		for rank, idx := range order {
			if tasks[idx].Position != rank {
				broken = append(broken, c.ID)
				break
			}
		}
	}
	return broken
}

// Column returns the tasks of columnID in display order.
func Column(tasks []board.Task, columnID string) []board.Task {
	order := columnOrder(tasks, columnID)
	out := make([]board.Task, len(order))
	for i, idx := range order {
		out[i] = tasks[idx]
	}
	return out
}

// =============================================================================

func resolveTarget(known map[string]bool, tasks []board.Task, overID string) (columnID string, overIdx int, ok bool) {
	if overID == "" {
		return "", -1, false
	}
	if i := indexOfTask(tasks, overID); i >= 0 {
		if !known[tasks[i].ColumnID] {
			return "", -1, false
		}
		return tasks[i].ColumnID, i, true
	}
	if known[overID] {
		return overID, -1, true
	}
	return "", -1, false
}

// columnOrder returns indexes into tasks for columnID, in display order.
func columnOrder(tasks []board.Task, columnID string) []int {
	var order []int
	for i, t := range tasks {
		if t.ColumnID == columnID {
			order = append(order, i)
		}
	}

	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(tasks[a].Position, tasks[b].Position); c != 0 {
			return c
		}
		if c := tasks[a].CreatedAt.Compare(tasks[b].CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	return order
}

// arrayMove removes the element at from and reinserts it at to.
func arrayMove[T any](s []T, from, to int) []T {
	out := slices.Clone(s)
	v := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, v)
}

func renumber(tasks []board.Task, order []int) {
	for rank, idx := range order {
		tasks[idx].Position = rank
	}
}

func diff(before, after []board.Task, groups ...[]int) []board.Task {
	var changed []board.Task
	for _, order := range groups {
		for _, idx := range order {
			if before[idx].ColumnID != after[idx].ColumnID || before[idx].Position != after[idx].Position {
				changed = append(changed, after[idx])
			}
		}
	}
	return changed
}

func indexOfTask(tasks []board.Task, id string) int {
	return slices.IndexFunc(tasks, func(t board.Task) bool { return t.ID == id })
}

func columnSet(columns []board.Column) map[string]bool {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c.ID] = true
	}
	return known
}
