package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type entry struct {
	count   int64
	resetAt time.Time
}

// Memory is an in-process Store. Expired entries are replaced lazily on the
// next hit; Sweep reclaims the ones nobody touches again.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewMemory returns an empty store. The clock is used only by Sweep.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{entries: make(map[string]*entry), now: now}
}

func (m *Memory) Hit(_ context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(window)}
		m.entries[key] = e
	}
	e.count++
	return e.count, e.resetAt, nil
}

// Len returns the number of tracked entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep drops entries whose window has ended.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.resetAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

const defaultRedisPrefix = "referral:ratelimit:"

// hitScript increments the counter and starts the window on the first hit.
// It returns the count and the remaining window in milliseconds.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Redis is a Store shared between service instances.
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

func (r *Redis) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	res, err := hitScript.Run(ctx, r.client, []string{r.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis rate limit script: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}
	return res[0], now.Add(time.Duration(res[1]) * time.Millisecond), nil
}
