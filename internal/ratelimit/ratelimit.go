// Package ratelimit provides fixed-window request admission per client and
// limit class.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Class names an independent request budget.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
	ClassAI    Class = "ai"
	ClassAuth  Class = "auth"
	ClassBatch Class = "batch"
)

// ErrUnknownClass is returned for a class with no configuration.
var ErrUnknownClass = errors.New("unknown rate limit class")

// ClassConfig sets the budget of one class. Limit <= 0 means unlimited.
type ClassConfig struct {
	Limit  int
	Window time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	Classes map[Class]ClassConfig
	// Allow lists client keys that are never limited.
	Allow map[string]bool
}

// DefaultClasses returns the stock class budgets.
func DefaultClasses() map[Class]ClassConfig {
	return map[Class]ClassConfig{
		ClassRead:  {Limit: 300, Window: time.Minute},
		ClassWrite: {Limit: 60, Window: time.Minute},
		ClassAI:    {Limit: 20, Window: time.Minute},
		ClassAuth:  {Limit: 10, Window: 15 * time.Minute},
		ClassBatch: {Limit: 5, Window: time.Hour},
	}
}

// Store counts hits per key inside fixed windows. Hit must atomically open a
// new window when none is active (or the active one has ended), increment
// the counter, and return the new count with the window's end.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, resetAt time.Time, err error)
}

// Decision describes the outcome of a rate limit check.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"resetAt"`
	RetryAfter time.Duration `json:"retryAfter"`
}

// Limiter admits or rejects requests.
type Limiter struct {
	store  Store
	config Config
	now    func() time.Time
	logger *zap.Logger
}

// NewLimiter creates a limiter. Nil classes fall back to DefaultClasses.
func NewLimiter(store Store, config Config, now func() time.Time, logger *zap.Logger) *Limiter {
	if config.Classes == nil {
		config.Classes = DefaultClasses()
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{store: store, config: config, now: now, logger: logger}
}

// Check counts one request from clientKey against class.
func (l *Limiter) Check(ctx context.Context, clientKey string, class Class) (Decision, error) {
	if !l.config.Enabled || l.config.Allow[clientKey] {
		return Decision{Allowed: true}, nil
	}

	cfg, ok := l.config.Classes[class]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return Decision{Allowed: true}, nil
	}

	now := l.now()
	count, resetAt, err := l.store.Hit(ctx, key(clientKey, class), cfg.Window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit hit: %w", err)
	}

	d := Decision{
		Allowed:   count <= int64(cfg.Limit),
		Limit:     cfg.Limit,
		Remaining: max(cfg.Limit-int(count), 0),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = max(resetAt.Sub(now), 0)
		l.logger.Info("rate limit exceeded",
			zap.String("client", clientKey),
			zap.String("class", string(class)),
			zap.Int("limit", cfg.Limit),
			zap.Time("reset_at", resetAt),
		)
	}
	return d, nil
}

func key(clientKey string, class Class) string {
	return string(class) + ":" + clientKey
}
