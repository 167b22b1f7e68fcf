package mid_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrazmi/kanban/bridge/scaffolding/errs"
	"github.com/jrazmi/kanban/bridge/scaffolding/mid"
	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo/stores/boardsmemstore"
	"github.com/jrazmi/kanban/infrastructure/web"
	"github.com/jrazmi/kanban/sdk/logger"
)

func newHandler(t *testing.T) *web.WebHandler {
	t.Helper()
	log := logger.NewDefault(logger.WithOutput(io.Discard))

	store := boardsmemstore.NewStore()
	store.AddBoard(board.Board{ID: "b1", TeamID: "team"})
	store.AddMember(board.TeamMembership{UserID: "admin", TeamID: "team", Role: board.RoleAdmin})
	store.AddMember(board.TeamMembership{UserID: "user", TeamID: "team", Role: board.RoleUser})

	h := web.NewWebHandler(web.HandlerOptions{},
		web.WithGlobalMiddleware(mid.Errors(log), mid.Panics()))

	whoami := func(ctx context.Context, r *http.Request) web.Encoder {
		m, err := mid.GetMembership(ctx)
		if err != nil {
			return errs.New(errs.Internal, err)
		}
		return web.NewJSONResponse(m)
	}

	h.GET("/boards/{board_id}", whoami, mid.Membership(store))
	h.POST("/boards/{board_id}/admin", whoami, mid.Membership(store), mid.RequireAdmin())
	h.GET("/panic", func(ctx context.Context, r *http.Request) web.Encoder {
		panic("boom")
	})
	h.GET("/plain", func(ctx context.Context, r *http.Request) web.Encoder {
		return web.NewError("secret detail")
	})
	return h
}

func do(h http.Handler, method, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set(mid.UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMembership(t *testing.T) {
	h := newHandler(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		want   int
	}{
		{"member", http.MethodGet, "/boards/b1", "user", http.StatusOK},
		{"no header", http.MethodGet, "/boards/b1", "", http.StatusUnauthorized},
		{"outsider", http.MethodGet, "/boards/b1", "stranger", http.StatusForbidden},
		{"unknown board", http.MethodGet, "/boards/nope", "user", http.StatusNotFound},
		{"admin route as admin", http.MethodPost, "/boards/b1/admin", "admin", http.StatusOK},
		{"admin route as user", http.MethodPost, "/boards/b1/admin", "user", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, tt.path, tt.user)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	rec := do(h, http.MethodGet, "/boards/b1", "admin")
	var m board.TeamMembership
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.UserID != "admin" || m.Role != board.RoleAdmin {
		t.Errorf("membership in context = %+v", m)
	}
}

func TestPanicsAreHidden(t *testing.T) {
	rec := do(newHandler(t), http.MethodGet, "/panic", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") || strings.Contains(rec.Body.String(), "TRACE") {
		t.Errorf("panic detail leaked: %s", rec.Body.String())
	}
}

func TestErrorsHidesUnknownErrors(t *testing.T) {
	rec := do(newHandler(t), http.MethodGet, "/plain", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Errorf("internal detail leaked: %s", rec.Body.String())
	}
}

func TestGetMembershipOutsideChain(t *testing.T) {
	if _, err := mid.GetMembership(context.Background()); err == nil {
		t.Error("expected an error without the middleware")
	}
	if _, err := mid.GetUserID(context.Background()); err == nil || errors.Is(err, board.ErrNotMember) {
		t.Errorf("GetUserID() error = %v", err)
	}
}
