package boardsession

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMoveInFlight is returned when a move or load arrives while the board is
// still reconciling or persisting the previous move.
var ErrMoveInFlight = errors.New("a move is already in flight for this board")

// FetchError reports that the board could not be read from the store.
type FetchError struct {
	BoardID string
	Op      string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch board %s: %s: %v", e.BoardID, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Recovery records what the session did after a failed commit.
type Recovery int

// Set of recovery actions.
const (
	// Resynced means the session reloaded the board from the store.
	Resynced Recovery = iota + 1
	// RolledBack means the reload failed too and the pre-move state was
	// restored. Rows that did get written are not undone.
	RolledBack
)

func (r Recovery) String() string {
	switch r {
	case Resynced:
		return "resynced"
	case RolledBack:
		return "rolled_back"
	}
	return "none"
}

// PlacementWriteError reports rows that could not be written after the
// optimistic state was applied. Succeeded rows stay written.
type PlacementWriteError struct {
	BoardID   string
	Failed    []string
	Succeeded []string
	Recovery  Recovery
	Err       error
}

func (e *PlacementWriteError) Error() string {
	return fmt.Sprintf("board %s: %d of %d placement writes failed (%s) [%s]: %v",
		e.BoardID, len(e.Failed), len(e.Failed)+len(e.Succeeded), e.Recovery,
		strings.Join(e.Failed, ", "), e.Err)
}

// Unwrap exposes the per-row causes to errors.Is and errors.As.
func (e *PlacementWriteError) Unwrap() error {
	return e.Err
}
