package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"
	"github.com/spigell/referral-matcher/internal/nudge"
	"github.com/spigell/referral-matcher/internal/ratelimit"
	"github.com/spigell/referral-matcher/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetConfigDefaults(t *testing.T) {
	config, err := getConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", config.Listen)
	assert.Equal(t, "UTC", config.Budget.Timezone)
	assert.Equal(t, 10*time.Second, config.AI.Timeout)
	assert.Equal(t, 10*time.Minute, config.AI.FallbackTTL)
	assert.Equal(t, int64(1), config.AI.CostPerCall)
	assert.True(t, config.RateLimit.Enabled)
	assert.False(t, config.AI.Enabled)
}

func TestGetConfigRejectsInvalid(t *testing.T) {
	viper.Set("budget.timezone", "Mars/Olympus_Mons")
	t.Cleanup(func() { viper.Set("budget.timezone", "UTC") })

	_, err := getConfig()
	assert.ErrorContains(t, err, "invalid config")
}

func TestRateLimitConfig(t *testing.T) {
	cfg := rateLimitConfig(RateLimitConfig{
		Enabled: true,
		Allow:   []string{" user:ops "},
		Classes: map[string]RateLimitClasses{
			"AI":    {Limit: 5},
			"batch": {Limit: -1, Window: time.Minute},
		},
	})

	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.Allow["user:ops"])
	assert.Equal(t, ratelimit.ClassConfig{Limit: 5, Window: time.Minute}, cfg.Classes[ratelimit.ClassAI])
	assert.Equal(t, ratelimit.ClassConfig{Limit: -1, Window: time.Minute}, cfg.Classes[ratelimit.ClassBatch])
	assert.Equal(t, ratelimit.DefaultClasses()[ratelimit.ClassRead], cfg.Classes[ratelimit.ClassRead])
}

func TestReadJobs(t *testing.T) {
	dir := t.TempDir()

	single := filepath.Join(dir, "job.json")
	require.NoError(t, os.WriteFile(single, []byte(`{"id": "j1", "skills": ["go"]}`), 0o600))
	jobs, err := readJobs(single)
	require.NoError(t, err)
	assert.Equal(t, []scoring.JobPosting{{ID: "j1", Skills: []string{"go"}}}, jobs)

	list := filepath.Join(dir, "jobs.json")
	require.NoError(t, os.WriteFile(list, []byte(` [{"id": "j1"}, {"id": "j2"}]`), 0o600))
	jobs, err = readJobs(list)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`[]`), 0o600))
	_, err = readJobs(empty)
	assert.Error(t, err)

	_, err = readJobs(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestBuildComponentsInMemory(t *testing.T) {
	config, err := getConfig()
	require.NoError(t, err)

	c, err := buildComponents(context.Background(), config, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	out := c.nudges.Generate(context.Background(),
		scoring.Profile{Skills: []string{"go"}, Domains: []string{"payments"}, ExperienceLevel: "senior"},
		scoring.JobPosting{ID: "j1", Title: "Backend Engineer", Skills: []string{"go"}, Domains: []string{"payments"}, ExperienceLevel: "senior"},
		nudge.Options{},
	)
	require.NotNil(t, out.Nudge)
	assert.Equal(t, "static", string(out.Source))

	require.NoError(t, c.janitor.Start())
	c.janitor.Stop()
}

func TestBuildComponentsWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	config, err := getConfig()
	require.NoError(t, err)
	config.RedisURL = "redis://" + mr.Addr()

	c, err := buildComponents(context.Background(), config, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	d, err := c.limiter.Check(context.Background(), "user:1", ratelimit.ClassAI)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.NotEmpty(t, mr.Keys())
}

func TestBuildComponentsRedisUnreachable(t *testing.T) {
	config, err := getConfig()
	require.NoError(t, err)
	config.RedisURL = "redis://127.0.0.1:1"

	_, err = buildComponents(context.Background(), config, zap.NewNop())
	assert.ErrorContains(t, err, "redis ping failed")
}
