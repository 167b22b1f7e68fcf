package reorder

import (
	"cmp"
	"slices"

	"github.com/jrazmi/kanban/core/board"
)

// ColumnResult is the outcome of resolving a column drop.
type ColumnResult struct {
	Kind   Kind
	Reason Reason

	// Columns is the full column list in display order.
	Columns []board.Column

	// Changed holds the columns whose position changed.
	Changed []board.Column
}

// Placements returns the store writes needed to persist r.
func (r ColumnResult) Placements() []board.ColumnPlacement {
	out := make([]board.ColumnPlacement, len(r.Changed))
	for i, c := range r.Changed {
		out[i] = board.ColumnPlacement{ColumnID: c.ID, BoardID: c.BoardID, Position: c.Position}
	}
	return out
}

// MoveColumn moves the column activeID into the slot of overID and renumbers
// all columns from zero. As with tasks, unresolvable drops are NoOp.
func MoveColumn(columns []board.Column, activeID, overID string) ColumnResult {
	noop := func(reason Reason) ColumnResult {
		return ColumnResult{Kind: NoOp, Reason: reason, Columns: columns}
	}

	if activeID == "" {
		return noop(ReasonUnknownActive)
	}
	if activeID == overID {
		return noop(ReasonSelfDrop)
	}

	ordered := sortedColumns(columns)
	from := slices.IndexFunc(ordered, func(c board.Column) bool { return c.ID == activeID })
	if from < 0 {
		return noop(ReasonUnknownActive)
	}
	to := slices.IndexFunc(ordered, func(c board.Column) bool { return c.ID == overID })
	if to < 0 {
		return noop(ReasonUnknownTarget)
	}

	moved := arrayMove(ordered, from, to)
	out, changed := renumberColumns(moved)
	if len(changed) == 0 {
		return noop(ReasonUnchanged)
	}

	return ColumnResult{Kind: Move, Columns: out, Changed: changed}
}

// NormalizeColumns renumbers columns densely from zero in display order.
func NormalizeColumns(columns []board.Column) ([]board.Column, []board.Column) {
	return renumberColumns(sortedColumns(columns))
}

// sortedColumns returns a copy of columns ordered by position, keeping input
// order for ties.
func sortedColumns(columns []board.Column) []board.Column {
	out := board.CloneColumns(columns)
	slices.SortStableFunc(out, func(a, b board.Column) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return out
}

func renumberColumns(ordered []board.Column) ([]board.Column, []board.Column) {
	var changed []board.Column
	for i := range ordered {
		if ordered[i].Position != i {
			ordered[i].Position = i
			changed = append(changed, ordered[i])
		}
	}
	return ordered, changed
}
