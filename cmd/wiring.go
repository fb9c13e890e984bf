package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spigell/referral-matcher/internal/ai"
	"github.com/spigell/referral-matcher/internal/ai/gemini"
	"github.com/spigell/referral-matcher/internal/budget"
	"github.com/spigell/referral-matcher/internal/cache"
	"github.com/spigell/referral-matcher/internal/janitor"
	"github.com/spigell/referral-matcher/internal/nudge"
	"github.com/spigell/referral-matcher/internal/orchestrator"
	"github.com/spigell/referral-matcher/internal/ratelimit"
	"github.com/spigell/referral-matcher/internal/secrets"
	"github.com/spigell/referral-matcher/internal/store"
	"go.uber.org/zap"
)

// components is everything the commands share, built once from Config.
type components struct {
	records store.Records
	guard   *budget.Guard
	limiter *ratelimit.Limiter
	orch    *orchestrator.Orchestrator
	nudges  *nudge.Service
	janitor *janitor.Janitor

	closers []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// buildComponents wires the backends selected by config. Redis, when
// configured, backs the cache, budget and rate limit counters so that
// several replicas share them; otherwise they live in process memory and
// the janitor reclaims expired entries.
func buildComponents(ctx context.Context, config *Config, logger *zap.Logger) (*components, error) {
	c := &components{}

	var (
		cacheBackend cache.Backend
		budgetStore  budget.Store
		limitStore   ratelimit.Store
		sweepTargets []janitor.Target
	)

	if config.RedisURL != "" {
		client, err := connectRedis(ctx, config.RedisURL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { client.Close() })

		cacheBackend = cache.NewRedis(client, "")
		budgetStore = budget.NewRedis(client, "")
		limitStore = ratelimit.NewRedis(client, "")
		logger.Info("using redis for shared state")
	} else {
		memCache := cache.NewMemory(nil)
		memLimits := ratelimit.NewMemory(nil)

		cacheBackend = memCache
		budgetStore = budget.NewMemory()
		limitStore = memLimits
		sweepTargets = append(sweepTargets,
			janitor.Target{Name: "cache", Sweeper: memCache},
			janitor.Target{Name: "ratelimit", Sweeper: memLimits},
		)
		logger.Info("using in-memory state", zap.String("hint", "set redis-url to share state between replicas"))
	}

	if config.DatabaseURL != "" {
		pg, err := store.Connect(ctx, config.DatabaseURL)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, pg.Close)

		if err := pg.Migrate(ctx); err != nil {
			c.Close()
			return nil, err
		}
		c.records = pg
	} else {
		c.records = store.NewMemory()
	}

	loc, err := time.LoadLocation(config.Budget.Timezone)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("budget timezone: %w", err)
	}
	c.guard = budget.NewGuard(budgetStore, budget.Config{
		DefaultCap: config.Budget.DefaultCap,
		Caps:       config.Budget.Caps,
		Location:   loc,
	}, nil, logger.Named("budget"))

	c.limiter = ratelimit.NewLimiter(limitStore, rateLimitConfig(config.RateLimit), nil, logger.Named("ratelimit"))

	cacheOpts := []cache.Option{cache.WithLogger(logger.Named("cache"))}
	for ns, ttl := range config.Cache.TTL {
		cacheOpts = append(cacheOpts, cache.WithTTL(ns, ttl))
	}

	c.orch = orchestrator.New(
		newGenerator(ctx, config.AI, logger),
		cache.New(cacheBackend, cacheOpts...),
		c.guard,
		orchestrator.Config{
			Enabled:          config.AI.Enabled,
			Timeout:          config.AI.Timeout,
			CostPerCall:      config.AI.CostPerCall,
			UnitsPer1KTokens: config.AI.UnitsPer1KTokens,
			CacheFallbacks:   config.AI.CacheFallbacks,
			FallbackTTL:      config.AI.FallbackTTL,
		},
		nil,
		logger.Named("orchestrator"),
	)
	c.nudges = nudge.NewService(c.orch, logger.Named("nudge"))
	c.janitor = janitor.New(config.Janitor.Schedule, logger.Named("janitor"), sweepTargets...)

	return c, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// newGenerator returns nil when AI is off or the provider cannot be set up;
// the orchestrator then serves deterministic fallbacks only.
func newGenerator(ctx context.Context, cfg AIConfig, logger *zap.Logger) ai.Generator {
	if !cfg.Enabled {
		logger.Info("ai generation disabled, serving static artifacts")
		return nil
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.ProviderName {
		logger.Warn("unsupported ai provider, serving static artifacts", zap.String("provider", cfg.Provider))
		return nil
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		logger.Warn("skipping ai provider", zap.Error(err),
			zap.String("hint", "set ai.gemini.api-key-file, REFERRAL_AI_GEMINI_API_KEY or GEMINI_API_KEY"))
		return nil
	}

	generator, err := gemini.NewGenerator(ctx, gemini.Options{
		APIKey:       apiKey,
		Model:        cfg.Gemini.Model,
		MaxRetries:   cfg.Gemini.MaxRetries,
		MaxLogLength: cfg.Gemini.MaxLogLength,
	}, logger.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries)))
	if err != nil {
		logger.Warn("skipping ai provider", zap.Error(err))
		return nil
	}

	return generator
}

func rateLimitConfig(cfg RateLimitConfig) ratelimit.Config {
	classes := ratelimit.DefaultClasses()
	for name, c := range cfg.Classes {
		class := ratelimit.Class(strings.ToLower(name))
		merged := classes[class]
		if c.Limit != 0 {
			merged.Limit = c.Limit
		}
		if c.Window > 0 {
			merged.Window = c.Window
		}
		classes[class] = merged
	}

	allow := make(map[string]bool, len(cfg.Allow))
	for _, key := range cfg.Allow {
		allow[strings.TrimSpace(key)] = true
	}

	return ratelimit.Config{Enabled: cfg.Enabled, Classes: classes, Allow: allow}
}
