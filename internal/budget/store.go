package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type state struct {
	windowStart time.Time
	spent       int64
}

// Memory keeps one BudgetState per scope in process memory. A state whose
// window is older than the requested one is reset before use.
type Memory struct {
	mu     sync.Mutex
	states map[string]*state
}

func NewMemory() *Memory {
	return &Memory{states: make(map[string]*state)}
}

func (m *Memory) Add(_ context.Context, scope string, window time.Time, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.current(scope, window)
	st.spent += amount
	return st.spent, nil
}

func (m *Memory) Spent(_ context.Context, scope string, window time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current(scope, window).spent, nil
}

// Reset clears the spend for scope.
func (m *Memory) Reset(scope string) {
	m.mu.Lock()
	delete(m.states, scope)
	m.mu.Unlock()
}

// current must be called with mu held.
func (m *Memory) current(scope string, window time.Time) *state {
	st, ok := m.states[scope]
	if !ok || st.windowStart.Before(window) {
		st = &state{windowStart: window}
		m.states[scope] = st
	}
	return st
}

const (
	defaultRedisPrefix = "referral:budget:"
	redisKeyTTL        = 48 * time.Hour
)

// Redis keeps spend counters in Redis so that every instance shares the cap.
// Each (scope, window) pair is its own key, so rollover needs no reset.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(scope string, window time.Time) string {
	return r.prefix + scope + ":" + window.Format("2006-01-02")
}

func (r *Redis) Add(ctx context.Context, scope string, window time.Time, amount int64) (int64, error) {
	key := r.key(scope, window)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key, amount)
		pipe.Expire(ctx, key, redisKeyTTL)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incrby: %w", err)
	}
	return incr.Val(), nil
}

func (r *Redis) Spent(ctx context.Context, scope string, window time.Time) (int64, error) {
	raw, err := r.client.Get(ctx, r.key(scope, window)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}

	spent, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse spend %q: %w", raw, err)
	}
	return spent, nil
}
