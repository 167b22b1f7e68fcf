package board

import "errors"

// Role is a member's role within a team.
type Role string

// Set of team roles.
const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// ErrNotMember is returned when a user has no membership in a board's team.
var ErrNotMember = errors.New("user is not a member of the board's team")

// TeamMembership ties a user to a team with a role. Callers resolve it once
// per request and pass it down; nothing below the bridge looks up identity.
type TeamMembership struct {
	UserID string `db:"user_id" json:"user_id"`
	TeamID string `db:"team_id" json:"team_id"`
	Role   Role   `db:"role" json:"role"`
}

// IsAdmin reports whether the member administers the team.
func (m TeamMembership) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// CanMoveTasks reports whether the member may reorder tasks. Every member can.
func (m TeamMembership) CanMoveTasks() bool {
	return m.Role == RoleAdmin || m.Role == RoleUser
}

// CanManageColumns reports whether the member may reorder or edit columns.
func (m TeamMembership) CanManageColumns() bool {
	return m.IsAdmin()
}
