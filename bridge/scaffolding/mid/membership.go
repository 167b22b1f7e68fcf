package mid

import (
	"context"
	"errors"
	"net/http"

	"github.com/jrazmi/kanban/bridge/scaffolding/errs"
	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
	"github.com/jrazmi/kanban/infrastructure/web"
)

// UserIDHeader carries the caller's id, set by the authenticating gateway.
const UserIDHeader = "X-User-ID"

// MembershipResolver looks up a user's role in the team owning a board.
type MembershipResolver interface {
	GetMembership(ctx context.Context, boardID, userID string) (board.TeamMembership, error)
}

// Membership resolves the caller's membership for the board named by the
// board_id path parameter and rejects callers outside the board's team.
func Membership(resolver MembershipResolver) web.Middleware {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(ctx context.Context, r *http.Request) web.Encoder {
			userID := r.Header.Get(UserIDHeader)
			if userID == "" {
				return errs.Newf(errs.Unauthenticated, "missing %s header", UserIDHeader)
			}

			boardID := web.Param(r, "board_id")
			if boardID == "" {
				return errs.Newf(errs.InvalidArgument, "missing board id")
			}

			m, err := resolver.GetMembership(ctx, boardID, userID)
			switch {
			case err == nil:
			case errors.Is(err, board.ErrNotMember):
				return errs.Newf(errs.PermissionDenied, "not a member of this board's team")
			case errors.Is(err, boardsrepo.ErrNotFound):
				return errs.Newf(errs.NotFound, "board %s not found", boardID)
			default:
				return errs.New(errs.Internal, err)
			}

			ctx = setUserID(ctx, userID)
			ctx = setMembership(ctx, m)
			return next(ctx, r)
		}
	}
}

// RequireAdmin rejects members who may not manage columns. It must run after
// Membership.
func RequireAdmin() web.Middleware {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(ctx context.Context, r *http.Request) web.Encoder {
			m, err := GetMembership(ctx)
			if err != nil {
				return errs.New(errs.Internal, err)
			}
			if !m.CanManageColumns() {
				return errs.Newf(errs.PermissionDenied, "team admin role required")
			}
			return next(ctx, r)
		}
	}
}
