package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "referral-matcher"
	envPrefix = "REFERRAL"
)

type Config struct {
	Listen      string          `mapstructure:"listen" validate:"required"`
	TrustProxy  bool            `mapstructure:"trust-proxy"`
	DatabaseURL string          `mapstructure:"database-url" validate:"omitempty,url"`
	RedisURL    string          `mapstructure:"redis-url" validate:"omitempty,url"`
	AI          AIConfig        `mapstructure:"ai"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Budget      BudgetConfig    `mapstructure:"budget"`
	RateLimit   RateLimitConfig `mapstructure:"ratelimit"`
	Janitor     JanitorConfig   `mapstructure:"janitor"`
}

type AIConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Provider         string        `mapstructure:"provider" validate:"omitempty,oneof=gemini"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gte=0"`
	CostPerCall      int64         `mapstructure:"cost-per-call" validate:"gte=0"`
	UnitsPer1KTokens int64         `mapstructure:"units-per-1k-tokens" validate:"gte=0"`
	CacheFallbacks   bool          `mapstructure:"cache-fallbacks"`
	FallbackTTL      time.Duration `mapstructure:"fallback-ttl" validate:"gte=0"`
	Gemini           GeminiConfig  `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key" json:"-"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries" validate:"gte=0"`
	MaxLogLength int    `mapstructure:"max-log-length" validate:"gte=0"`
}

type CacheConfig struct {
	// TTL per artifact namespace. Namespaces without one never expire.
	TTL map[string]time.Duration `mapstructure:"ttl"`
}

type BudgetConfig struct {
	Timezone   string           `mapstructure:"timezone" validate:"required,timezone"`
	DefaultCap int64            `mapstructure:"default-cap"`
	Caps       map[string]int64 `mapstructure:"caps"`
}

type RateLimitConfig struct {
	Enabled bool                        `mapstructure:"enabled"`
	Allow   []string                    `mapstructure:"allow"`
	Classes map[string]RateLimitClasses `mapstructure:"classes" validate:"dive"`
}

// RateLimitClasses overrides a default class. A negative limit turns the
// class off.
type RateLimitClasses struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window" validate:"gte=0"`
}

type JanitorConfig struct {
	Schedule string `mapstructure:"schedule"`
}

var (
	// Used for flags.
	cfgFile string

	validate = validator.New()

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "referral-matcher scores candidates against jobs and writes AI-backed referral nudges",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is referral-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("listen", ":8080")
	viper.SetDefault("trust-proxy", false)
	viper.SetDefault("database-url", "")
	viper.SetDefault("redis-url", "")

	viper.SetDefault("ai.enabled", false)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.timeout", "10s")
	viper.SetDefault("ai.cost-per-call", 1)
	viper.SetDefault("ai.units-per-1k-tokens", 0)
	viper.SetDefault("ai.cache-fallbacks", false)
	viper.SetDefault("ai.fallback-ttl", "10m")
	viper.SetDefault("ai.gemini.api-key", "")
	viper.SetDefault("ai.gemini.api-key-file", "")
	viper.SetDefault("ai.gemini.model", "")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)

	viper.SetDefault("budget.timezone", "UTC")
	viper.SetDefault("budget.default-cap", 0)

	viper.SetDefault("ratelimit.enabled", true)

	viper.SetDefault("janitor.schedule", "@every 1m")
}

func initConfig() {
	// A missing .env is fine; a broken one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Without an explicit --config the defaults and environment suffice.
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}
