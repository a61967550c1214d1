package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

type APIConfig struct {
	BaseURL     string `yaml:"base_url"`
	BearerToken string `yaml:"bearer_token,omitempty"`
	PageSize    int    `yaml:"page_size"`
	PageDelay   string `yaml:"page_delay"`
	Timeout     string `yaml:"timeout"`
}

type CacheConfig struct {
	Backend   string `yaml:"backend"` // "sqlite" or "redis"
	RedisAddr string `yaml:"redis_addr,omitempty"`
	Retention string `yaml:"retention"`
	SearchTTL string `yaml:"search_ttl"`
	ThreadTTL string `yaml:"thread_ttl"`
	TweetTTL  string `yaml:"tweet_ttl"`
	// ProfileTTL covers user timelines.
	ProfileTTL string `yaml:"profile_ttl"`
}

type BudgetConfig struct {
	UnitPriceUSD float64 `yaml:"unit_price_usd"`
}

type Config struct {
	API    APIConfig    `yaml:"api"`
	Cache  CacheConfig  `yaml:"cache"`
	Budget BudgetConfig `yaml:"budget"`
}

func (c *Config) PageDelayDuration() time.Duration {
	return parseOr(c.API.PageDelay, 350*time.Millisecond)
}

func (c *Config) TimeoutDuration() time.Duration {
	return parseOr(c.API.Timeout, 30*time.Second)
}

func (c *Config) RetentionDuration() time.Duration {
	return parseOr(c.Cache.Retention, 24*time.Hour)
}

func (c *Config) SearchTTL() time.Duration  { return parseOr(c.Cache.SearchTTL, 15*time.Minute) }
func (c *Config) ThreadTTL() time.Duration  { return parseOr(c.Cache.ThreadTTL, 2*time.Hour) }
func (c *Config) TweetTTL() time.Duration   { return parseOr(c.Cache.TweetTTL, 24*time.Hour) }
func (c *Config) ProfileTTL() time.Duration { return parseOr(c.Cache.ProfileTTL, time.Hour) }

// GetPageSize returns the configured page size, defaulting to 100.
func (c *Config) GetPageSize() int {
	if c.API.PageSize <= 0 {
		return 100
	}
	return c.API.PageSize
}

// UnitPrice returns the price of one record read, defaulting to $0.005.
func (c *Config) UnitPrice() float64 {
	if c.Budget.UnitPriceUSD <= 0 {
		return 0.005
	}
	return c.Budget.UnitPriceUSD
}

// ParseDuration accepts Go durations plus an "Nd" day suffix.
func ParseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func parseOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "xscout", "config.yaml")
}

func CachePath() string {
	return filepath.Join(xdg.CacheHome, "xscout", "results.db")
}

func LedgerPath() string {
	return filepath.Join(xdg.DataHome, "xscout", "budget.json")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Non-fatal: embedded defaults still apply
			_ = writeDefaults(path)
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Unmarshalling over the defaults keeps keys the user omitted.
	cfg := *defaults
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o600)
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url: scheme must be http or https, got %q", u.Scheme)
	}
	if cfg.API.PageSize < 0 {
		return fmt.Errorf("api.page_size: must not be negative, got %d", cfg.API.PageSize)
	}
	switch cfg.Cache.Backend {
	case "", "sqlite":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend: unknown backend %q (valid: sqlite, redis)", cfg.Cache.Backend)
	}
	for name, v := range map[string]string{
		"cache.retention":   cfg.Cache.Retention,
		"cache.search_ttl":  cfg.Cache.SearchTTL,
		"cache.thread_ttl":  cfg.Cache.ThreadTTL,
		"cache.tweet_ttl":   cfg.Cache.TweetTTL,
		"cache.profile_ttl": cfg.Cache.ProfileTTL,
		"api.page_delay":    cfg.API.PageDelay,
		"api.timeout":       cfg.API.Timeout,
	} {
		if v == "" {
			continue
		}
		if _, err := ParseDuration(v); err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, v)
		}
	}
	if cfg.Budget.UnitPriceUSD < 0 {
		return fmt.Errorf("budget.unit_price_usd: must not be negative")
	}
	return nil
}
