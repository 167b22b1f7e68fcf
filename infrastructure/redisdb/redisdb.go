// Package redisdb builds go-redis clients from env configuration.
package redisdb

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jrazmi/kanban/sdk/environment"
)

type Client = redis.Client

// Options represents the exportable redis configuration. An empty
// ConnectionString means redis is disabled.
type Options struct {
	ConnectionString string        `env:"REDIS_CONNECTION_STRING"`
	CacheTTL         time.Duration `env:"REDIS_CACHE_TTL" default:"5m"`
	DialTimeout      time.Duration `env:"REDIS_DIAL_TIMEOUT" default:"5s"`
}

// Option is a function that configures the client options
type Option func(*redis.Options)

// WithDialTimeout overrides the dial timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) {
		o.DialTimeout = d
	}
}

// NewFromEnv reads PREFIX_REDIS_* and returns a connected client, or nil when
// no connection string is configured.
func NewFromEnv(ctx context.Context, prefix string, opts ...Option) (*redis.Client, Options, error) {
	var cfg Options
	if err := environment.ParseEnvTags(prefix, &cfg); err != nil {
		return nil, cfg, fmt.Errorf("parsing redis config: %w", err)
	}
	if cfg.ConnectionString == "" {
		return nil, cfg, nil
	}

	ro := ParseConnectionString(cfg.ConnectionString)
	ro.DialTimeout = cfg.DialTimeout
	for _, opt := range opts {
		opt(ro)
	}

	client := redis.NewClient(ro)
	if err := StatusCheck(ctx, client); err != nil {
		_ = client.Close()
		return nil, cfg, fmt.Errorf("pinging redis: %w", err)
	}
	return client, cfg, nil
}

// ParseConnectionString accepts a redis:// URL or the Azure style
// "host:port,password=...,ssl=true" form.
func ParseConnectionString(conn string) *redis.Options {
	if ro, err := redis.ParseURL(conn); err == nil {
		return ro
	}

	parts := strings.Split(conn, ",")
	ro := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			ro.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				ro.TLSConfig = &tls.Config{}
			}
		}
	}
	return ro
}

// StatusCheck pings the server, bounding the call to a second when ctx has no
// deadline.
func StatusCheck(ctx context.Context, client *redis.Client) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second)
		defer cancel()
	}
	return client.Ping(ctx).Err()
}
