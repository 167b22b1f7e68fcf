package boardsession

import (
	"fmt"
	"time"

	"github.com/jrazmi/kanban/sdk/environment"
)

// Config tunes how sessions persist moves.
type Config struct {
	MaxParallelWrites int           `env:"SESSION_MAX_PARALLEL_WRITES" default:"8"`
	WriteAttempts     int           `env:"SESSION_WRITE_ATTEMPTS" default:"3"`
	RetryBackoff      time.Duration `env:"SESSION_RETRY_BACKOFF" default:"50ms"`
	MaxRetryBackoff   time.Duration `env:"SESSION_MAX_RETRY_BACKOFF" default:"1s"`
	ResyncTimeout     time.Duration `env:"SESSION_RESYNC_TIMEOUT" default:"5s"`
	IdleTTL           time.Duration `env:"SESSION_IDLE_TTL" default:"30m"`
}

// DefaultConfig matches the env defaults.
func DefaultConfig() Config {
	return Config{
		MaxParallelWrites: 8,
		WriteAttempts:     3,
		RetryBackoff:      50 * time.Millisecond,
		MaxRetryBackoff:   time.Second,
		ResyncTimeout:     5 * time.Second,
		IdleTTL:           30 * time.Minute,
	}
}

// ConfigFromEnv reads PREFIX_SESSION_* variables.
func ConfigFromEnv(prefix string) (Config, error) {
	var cfg Config
	if err := environment.ParseEnvTags(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing session config: %w", err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	if c.MaxParallelWrites <= 0 {
		c.MaxParallelWrites = 1
	}
	if c.WriteAttempts <= 0 {
		c.WriteAttempts = 1
	}
	if c.MaxRetryBackoff < c.RetryBackoff {
		c.MaxRetryBackoff = c.RetryBackoff
	}
	if c.ResyncTimeout <= 0 {
		c.ResyncTimeout = 5 * time.Second
	}
	return c
}

// backoff returns the wait before the given retry (attempt >= 2).
func (c Config) backoff(attempt int) time.Duration {
	d := c.RetryBackoff * time.Duration(1<<(attempt-2))
	if d > c.MaxRetryBackoff || d <= 0 {
		return c.MaxRetryBackoff
	}
	return d
}
