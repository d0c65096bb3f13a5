package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env      string `mapstructure:"PP_ENV"`
	HTTPAddr string `mapstructure:"PP_HTTP_ADDR"`
	LogLevel string `mapstructure:"PP_LOG_LEVEL"`

	Source   SourceConfig   `mapstructure:",squash"`
	Database DBConfig       `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Pipeline PipelineConfig `mapstructure:",squash"`
	History  HistoryConfig  `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type SourceConfig struct {
	Provider      string        `mapstructure:"PP_SOURCE_PROVIDER"` // "linkedin", "mock"
	BaseURL       string        `mapstructure:"PP_LINKEDIN_BASE_URL"`
	APIVersion    string        `mapstructure:"PP_LINKEDIN_VERSION"`
	Timeout       time.Duration `mapstructure:"PP_LINKEDIN_TIMEOUT"`
	MaxPages      int           `mapstructure:"PP_LINKEDIN_MAX_PAGES"`
	PageSize      int           `mapstructure:"PP_LINKEDIN_PAGE_SIZE"`
	MockSeed      int64         `mapstructure:"PP_MOCK_SEED"`
	MockPostCount int           `mapstructure:"PP_MOCK_POST_COUNT"`
}

type DBConfig struct {
	Driver string `mapstructure:"PP_DB_DRIVER"` // "memory", "postgres", "sqlite"
	DSN    string `mapstructure:"PP_DB_DSN"`
}

type CacheConfig struct {
	Backend     string        `mapstructure:"PP_KV_BACKEND"` // "memory", "redis", "failover"
	RedisAddr   string        `mapstructure:"PP_REDIS_ADDR"`
	TTL         time.Duration `mapstructure:"PP_CACHE_TTL"`
	DegradedTTL time.Duration `mapstructure:"PP_CACHE_DEGRADED_TTL"`
}

type PipelineConfig struct {
	TrendDays         int           `mapstructure:"PP_TREND_DAYS"`
	TimelineLimit     int           `mapstructure:"PP_TIMELINE_LIMIT"`
	MediaProxyPrefix  string        `mapstructure:"PP_MEDIA_PROXY_PREFIX"`
	StableSnapshotIDs bool          `mapstructure:"PP_STABLE_SNAPSHOT_IDS"`
	Timezone          string        `mapstructure:"PP_TIMEZONE"`
	RunTimeout        time.Duration `mapstructure:"PP_PIPELINE_TIMEOUT"`
}

type HistoryConfig struct {
	Retention     time.Duration `mapstructure:"PP_HISTORY_RETENTION"`
	PruneInterval time.Duration `mapstructure:"PP_PRUNE_INTERVAL"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"PP_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"PP_CORS_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env.local",
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // real environment wins
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PP_ENV", "dev")
	v.SetDefault("PP_HTTP_ADDR", ":8080")
	v.SetDefault("PP_LOG_LEVEL", "")
	v.SetDefault("PP_SOURCE_PROVIDER", "linkedin")
	v.SetDefault("PP_LINKEDIN_BASE_URL", "https://api.linkedin.com")
	v.SetDefault("PP_LINKEDIN_VERSION", "202312")
	v.SetDefault("PP_LINKEDIN_TIMEOUT", "15s")
	v.SetDefault("PP_LINKEDIN_MAX_PAGES", 4)
	v.SetDefault("PP_LINKEDIN_PAGE_SIZE", 50)
	v.SetDefault("PP_MOCK_SEED", 42)
	v.SetDefault("PP_MOCK_POST_COUNT", 24)
	v.SetDefault("PP_DB_DRIVER", "memory")
	v.SetDefault("PP_DB_DSN", "")
	v.SetDefault("PP_KV_BACKEND", "memory")
	v.SetDefault("PP_REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("PP_CACHE_TTL", "5m")
	v.SetDefault("PP_CACHE_DEGRADED_TTL", "30s")
	v.SetDefault("PP_TREND_DAYS", 28)
	v.SetDefault("PP_TIMELINE_LIMIT", 100)
	v.SetDefault("PP_MEDIA_PROXY_PREFIX", "/api/media?asset=")
	v.SetDefault("PP_STABLE_SNAPSHOT_IDS", false)
	v.SetDefault("PP_TIMEZONE", "Local")
	v.SetDefault("PP_PIPELINE_TIMEOUT", "60s")
	v.SetDefault("PP_HISTORY_RETENTION", "2160h")
	v.SetDefault("PP_PRUNE_INTERVAL", "1h")
	v.SetDefault("PP_RATE_LIMIT_RPM", 120)
	v.SetDefault("PP_CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")
}

// Load reads configuration from .env files and the process environment.
func Load() (*Config, error) {
	loadDotEnvFiles()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	if origins := v.GetString("PP_CORS_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		v.Set("PP_CORS_ORIGINS", parts)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Source.Provider = strings.ToLower(strings.TrimSpace(cfg.Source.Provider))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Source.Provider {
	case "linkedin", "mock":
	default:
		return fmt.Errorf("invalid PP_SOURCE_PROVIDER %q (must be linkedin or mock)", c.Source.Provider)
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("PP_DB_DSN is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("invalid PP_DB_DRIVER %q (must be memory, postgres, or sqlite)", c.Database.Driver)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "failover":
	default:
		return fmt.Errorf("invalid PP_KV_BACKEND %q (must be memory, redis, or failover)", c.Cache.Backend)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("PP_LINKEDIN_TIMEOUT must be positive")
	}
	if c.Source.PageSize <= 0 || c.Source.MaxPages <= 0 {
		return fmt.Errorf("PP_LINKEDIN_PAGE_SIZE and PP_LINKEDIN_MAX_PAGES must be positive")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("PP_CACHE_TTL must not be negative")
	}
	if c.Cache.DegradedTTL <= 0 {
		return fmt.Errorf("PP_CACHE_DEGRADED_TTL must be positive")
	}
	if c.Pipeline.RunTimeout <= 0 {
		return fmt.Errorf("PP_PIPELINE_TIMEOUT must be positive")
	}
	if c.Pipeline.TrendDays <= 0 {
		return fmt.Errorf("PP_TREND_DAYS must be positive")
	}
	if c.Pipeline.TimelineLimit < 0 {
		return fmt.Errorf("PP_TIMELINE_LIMIT must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid PP_TIMEZONE %q: %w", c.Pipeline.Timezone, err)
	}
	if c.History.Retention <= 0 || c.History.PruneInterval <= 0 {
		return fmt.Errorf("PP_HISTORY_RETENTION and PP_PRUNE_INTERVAL must be positive")
	}
	return nil
}

// Location resolves the timezone used for calendar-day bucketing.
func (c *Config) Location() (*time.Location, error) {
	if c.Pipeline.Timezone == "" || c.Pipeline.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Pipeline.Timezone)
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}
