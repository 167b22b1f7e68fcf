package board

// DefaultColumnNames seed a board that has no columns yet.
var DefaultColumnNames = []string{"To Do", "In Progress", "Done"}

// DefaultColumns builds the starter columns for boardID, numbering them from
// zero. newID supplies column ids.
func DefaultColumns(boardID string, newID func() string) []Column {
	cols := make([]Column, len(DefaultColumnNames))
	for i, name := range DefaultColumnNames {
		cols[i] = Column{
			ID:       newID(),
			BoardID:  boardID,
			Name:     name,
			Position: i,
		}
	}
	return cols
}
