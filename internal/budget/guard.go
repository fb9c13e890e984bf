// Package budget tracks paid AI spend against daily caps per billing scope.
//
// A window is one calendar day in a fixed time zone. The first call after
// midnight in that zone observes an empty window.
package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GlobalScope is used when the caller supplies no scope.
const GlobalScope = "global"

// Store accumulates spend per scope and window. Add must be atomic: under
// concurrent calls the final total equals the sum of all amounts.
type Store interface {
	Add(ctx context.Context, scope string, window time.Time, amount int64) (int64, error)
	Spent(ctx context.Context, scope string, window time.Time) (int64, error)
}

// Status is the outcome of a budget check.
type Status struct {
	Scope           string    `json:"scope"`
	WithinBudget    bool      `json:"withinBudget"`
	DailySpend      int64     `json:"dailySpend"`
	RemainingBudget int64     `json:"remainingBudget"`
	DailyCap        int64     `json:"dailyCap"`
	ResetAt         time.Time `json:"resetAt"`
}

// Config holds caps in cost units. A cap <= 0 means unlimited.
type Config struct {
	DefaultCap int64
	Caps       map[string]int64
	Location   *time.Location
}

// Guard answers budget checks and records spend.
type Guard struct {
	store  Store
	config Config
	now    func() time.Time
	logger *zap.Logger
}

// NewGuard returns a Guard over store. A nil clock uses time.Now and a nil
// location uses UTC.
func NewGuard(store Store, config Config, now func() time.Time, logger *zap.Logger) *Guard {
	if now == nil {
		now = time.Now
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, config: config, now: now, logger: logger}
}

// Cap returns the daily cap configured for scope.
func (g *Guard) Cap(scope string) int64 {
	scope = normalizeScope(scope)
	if c, ok := g.config.Caps[scope]; ok {
		return c
	}
	return g.config.DefaultCap
}

// Window returns the start of the window containing t and the start of the
// next one.
func (g *Guard) Window(t time.Time) (start, next time.Time) {
	local := t.In(g.config.Location)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.config.Location)
	next = start.AddDate(0, 0, 1)
	return start, next
}

// Check reports whether a paid call costing estimate may proceed. It is
// advisory: it reserves nothing.
func (g *Guard) Check(ctx context.Context, scope string, estimate int64) (Status, error) {
	scope = normalizeScope(scope)
	start, next := g.Window(g.now())
	limit := g.Cap(scope)

	spent, err := g.store.Spent(ctx, scope, start)
	if err != nil {
		return Status{Scope: scope, DailyCap: limit, ResetAt: next}, fmt.Errorf("read spend for %s: %w", scope, err)
	}

	status := Status{
		Scope:      scope,
		DailySpend: spent,
		DailyCap:   limit,
		ResetAt:    next,
	}

	if limit <= 0 {
		status.WithinBudget = true
		status.RemainingBudget = -1
		return status, nil
	}

	if estimate < 0 {
		estimate = 0
	}
	status.RemainingBudget = max(limit-spent, 0)
	status.WithinBudget = spent < limit && spent+estimate <= limit
	return status, nil
}

// Record adds amount to the scope's spend in the current window.
func (g *Guard) Record(ctx context.Context, scope string, amount int64) error {
	if amount <= 0 {
		return nil
	}

	scope = normalizeScope(scope)
	start, _ := g.Window(g.now())

	total, err := g.store.Add(ctx, scope, start, amount)
	if err != nil {
		return fmt.Errorf("record spend for %s: %w", scope, err)
	}

	g.logger.Debug("recorded ai spend",
		zap.String("scope", scope),
		zap.Int64("amount", amount),
		zap.Int64("daily_spend", total),
		zap.Int64("daily_cap", g.Cap(scope)),
	)
	return nil
}

func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return GlobalScope
	}
	return scope
}
