package redisdb_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/jrazmi/kanban/infrastructure/redisdb"
)

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		conn     string
		addr     string
		password string
		tls      bool
	}{
		{"url", "redis://:secret@cache:6380/0", "cache:6380", "secret", false},
		{"azure style", "cache.example.net:6380,password=pw,ssl=True", "cache.example.net:6380", "pw", true},
		{"bare host", "localhost:6379", "localhost:6379", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ro := redisdb.ParseConnectionString(tt.conn)
			if ro.Addr != tt.addr {
				t.Fatalf("addr = %q, want %q", ro.Addr, tt.addr)
			}
			if ro.Password != tt.password {
				t.Fatalf("password = %q, want %q", ro.Password, tt.password)
			}
			if (ro.TLSConfig != nil) != tt.tls {
				t.Fatalf("tls = %v, want %v", ro.TLSConfig != nil, tt.tls)
			}
		})
	}
}

func TestNewFromEnv(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		t.Setenv("KT_REDIS_CONNECTION_STRING", "")
		client, cfg, err := redisdb.NewFromEnv(ctx, "KT")
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if client != nil {
			t.Fatal("expected nil client without a connection string")
		}
		if cfg.CacheTTL != 5*time.Minute {
			t.Fatalf("ttl = %v", cfg.CacheTTL)
		}
	})

	t.Run("connected", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("start miniredis: %v", err)
		}
		t.Cleanup(mr.Close)

		t.Setenv("KT_REDIS_CONNECTION_STRING", mr.Addr())
		t.Setenv("KT_REDIS_CACHE_TTL", "30s")

		client, cfg, err := redisdb.NewFromEnv(ctx, "KT")
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		t.Cleanup(func() { _ = client.Close() })

		if cfg.CacheTTL != 30*time.Second {
			t.Fatalf("ttl = %v", cfg.CacheTTL)
		}
		if err := redisdb.StatusCheck(ctx, client); err != nil {
			t.Fatalf("status: %v", err)
		}
	})
}
