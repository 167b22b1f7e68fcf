// Package mid provides app level middleware support.
package mid

import (
	"context"
	"errors"

	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/infrastructure/web"
)

type ctxKey int

const (
	userIDKey ctxKey = iota + 1
	membershipKey
)

func setUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the user id from the context.
func GetUserID(ctx context.Context) (string, error) {
	v, ok := ctx.Value(userIDKey).(string)
	if !ok {
		return "", errors.New("user id not found in context")
	}

	return v, nil
}

func setMembership(ctx context.Context, m board.TeamMembership) context.Context {
	return context.WithValue(ctx, membershipKey, m)
}

// GetMembership returns the caller's membership in the requested board's
// team, as resolved by the Membership middleware.
func GetMembership(ctx context.Context) (board.TeamMembership, error) {
	v, ok := ctx.Value(membershipKey).(board.TeamMembership)
	if !ok {
		return board.TeamMembership{}, errors.New("membership not found in context")
	}
	return v, nil
}

// isError tests if the Encoder has an error inside of it.
func isError(e web.Encoder) error {
	err, isError := e.(error)
	if isError {
		return err
	}
	return nil
}
