package web_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrazmi/kanban/infrastructure/web"
)

type input struct {
	Name string `json:"name"`
}

func (i input) Validate() error {
	if i.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func TestHandle_GroupsAndMiddlewareOrder(t *testing.T) {
	var trace []string
	tag := func(name string) web.Middleware {
		return func(next web.HandlerFunc) web.HandlerFunc {
			return func(ctx context.Context, r *http.Request) web.Encoder {
				trace = append(trace, name)
				return next(ctx, r)
			}
		}
	}

	h := web.NewWebHandler(web.HandlerOptions{}, web.WithGlobalMiddleware(tag("global")))
	api := h.Group("/api/v1/", tag("group"))
	api.GET("/boards/{board_id}", func(ctx context.Context, r *http.Request) web.Encoder {
		return web.NewJSONResponse(map[string]string{"id": web.Param(r, "board_id")})
	}, tag("route"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/boards/b1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"id":"b1"}` {
		t.Errorf("body = %s", got)
	}
	if got := strings.Join(trace, ","); got != "global,group,route" {
		t.Errorf("middleware order = %s", got)
	}
}

func TestHandle_StatusFromEncoder(t *testing.T) {
	h := web.NewWebHandler(web.HandlerOptions{})
	h.POST("/created", func(ctx context.Context, r *http.Request) web.Encoder {
		return web.NewJSONResponseWithStatus(map[string]int{"n": 1}, http.StatusCreated)
	})
	h.GET("/empty", func(ctx context.Context, r *http.Request) web.Encoder {
		return nil
	})
	h.GET("/broken", func(ctx context.Context, r *http.Request) web.Encoder {
		return web.NewError("boom")
	})

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/created", http.StatusCreated},
		{http.MethodGet, "/empty", http.StatusNoContent},
		{http.MethodGet, "/broken", http.StatusInternalServerError},
		{http.MethodGet, "/created", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := web.NewWebHandler(web.HandlerOptions{CORSOrigins: []string{"https://app.example"}})
	h.POST("/moves", func(ctx context.Context, r *http.Request) web.Encoder {
		return web.NewJSONResponse("ok")
	})

	req := httptest.NewRequest(http.MethodOptions, "/moves", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "X-User-ID") {
		t.Errorf("allow headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Errorf("allow methods = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/moves", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got allow origin %q", got)
	}
}

func TestServerRunShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	h := web.NewWebHandler(web.HandlerOptions{})
	h.GET("/health", func(ctx context.Context, r *http.Request) web.Encoder {
		return web.NewJSONResponse("ok")
	})
	srv := web.NewServer(web.DefaultServerConfig(), web.WithHandler(h), web.WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"empty", ``, true},
		{"malformed", `{"name":`, true},
		{"invalid", `{"name":""}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in input
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := web.Decode(r, &in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := web.Decode(r, &input{}); !errors.Is(err, web.ErrEmptyBody) {
		t.Errorf("Decode() on no body = %v, want ErrEmptyBody", err)
	}
}

func TestQueryBool(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?refresh=true&x=nope", nil)
	if !web.QueryBool(r, "refresh") {
		t.Error("refresh should be true")
	}
	if web.QueryBool(r, "x") || web.QueryBool(r, "missing") {
		t.Error("malformed and missing values should be false")
	}
}
