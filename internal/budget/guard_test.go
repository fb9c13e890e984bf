package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type brokenStore struct{}

func (brokenStore) Add(context.Context, string, time.Time, int64) (int64, error) {
	return 0, errors.New("down")
}

func (brokenStore) Spent(context.Context, string, time.Time) (int64, error) {
	return 0, errors.New("down")
}

func TestGuardSequentialSpendAgainstCap(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	guard := NewGuard(NewMemory(), Config{DefaultCap: 10}, clock.Now, nil)

	for i := 0; i < 2; i++ {
		status, err := guard.Check(ctx, "tenant-a", 4)
		require.NoError(t, err)
		require.True(t, status.WithinBudget, "call %d", i+1)
		require.NoError(t, guard.Record(ctx, "tenant-a", 4))
	}

	status, err := guard.Check(ctx, "tenant-a", 4)
	require.NoError(t, err)
	assert.False(t, status.WithinBudget)
	assert.Equal(t, int64(8), status.DailySpend)
	assert.Equal(t, int64(2), status.RemainingBudget)
	assert.Equal(t, int64(10), status.DailyCap)
}

func TestGuardExhaustedWithoutEstimate(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(NewMemory(), Config{DefaultCap: 5}, nil, nil)

	require.NoError(t, guard.Record(ctx, "", 5))

	status, err := guard.Check(ctx, GlobalScope, 0)
	require.NoError(t, err)
	assert.False(t, status.WithinBudget)
	assert.Equal(t, int64(0), status.RemainingBudget)
}

func TestGuardWindowRollover(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("UTC+3", 3*60*60)
	clock := &fakeClock{now: time.Date(2026, 3, 10, 23, 30, 0, 0, loc)}
	guard := NewGuard(NewMemory(), Config{DefaultCap: 10, Location: loc}, clock.Now, nil)

	require.NoError(t, guard.Record(ctx, "s", 10))
	status, err := guard.Check(ctx, "s", 1)
	require.NoError(t, err)
	assert.False(t, status.WithinBudget)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, loc), status.ResetAt)

	clock.Set(time.Date(2026, 3, 11, 0, 0, 1, 0, loc))
	status, err = guard.Check(ctx, "s", 1)
	require.NoError(t, err)
	assert.True(t, status.WithinBudget)
	assert.Equal(t, int64(0), status.DailySpend)
}

func TestGuardPerScopeCaps(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(NewMemory(), Config{DefaultCap: 100, Caps: map[string]int64{"small": 1, "free": 0}}, nil, nil)

	assert.Equal(t, int64(1), guard.Cap("small"))
	assert.Equal(t, int64(100), guard.Cap("other"))

	status, err := guard.Check(ctx, "small", 2)
	require.NoError(t, err)
	assert.False(t, status.WithinBudget)

	require.NoError(t, guard.Record(ctx, "free", 1_000_000))
	status, err = guard.Check(ctx, "free", 1_000_000)
	require.NoError(t, err)
	assert.True(t, status.WithinBudget)
	assert.Equal(t, int64(-1), status.RemainingBudget)
}

func TestGuardRecordIgnoresNonPositive(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	guard := NewGuard(mem, Config{DefaultCap: 10}, nil, nil)

	require.NoError(t, guard.Record(ctx, "s", 0))
	require.NoError(t, guard.Record(ctx, "s", -3))

	status, err := guard.Check(ctx, "s", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.DailySpend)
}

func TestGuardConcurrentRecordsAreConserved(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(NewMemory(), Config{DefaultCap: 0}, nil, nil)

	var (
		wg       sync.WaitGroup
		expected int64
	)
	for i := 1; i <= 200; i++ {
		amount := int64(i%7 + 1)
		expected += amount
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, guard.Record(ctx, "tenant", amount))
		}()
	}
	wg.Wait()

	status, err := guard.Check(ctx, "tenant", 0)
	require.NoError(t, err)
	assert.Equal(t, expected, status.DailySpend)
}

func TestGuardStoreErrors(t *testing.T) {
	guard := NewGuard(brokenStore{}, Config{DefaultCap: 10}, nil, nil)

	status, err := guard.Check(context.Background(), "s", 1)
	assert.Error(t, err)
	assert.False(t, status.WithinBudget)
	assert.Error(t, guard.Record(context.Background(), "s", 1))
}

func TestMemoryReset(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	window := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := mem.Add(ctx, "s", window, 7)
	require.NoError(t, err)
	mem.Reset("s")

	spent, err := mem.Spent(ctx, "s", window)
	require.NoError(t, err)
	assert.Equal(t, int64(0), spent)
}

func TestRedisStoreConcurrentAdds(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedis(client, "")
	window := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Add(ctx, "tenant", window, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	spent, err := store.Spent(ctx, "tenant", window)
	require.NoError(t, err)
	assert.Equal(t, int64(150), spent)

	next, err := store.Spent(ctx, "tenant", window.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(0), next)
	assert.Greater(t, mr.TTL(defaultRedisPrefix+"tenant:2026-05-01"), time.Duration(0))
}
