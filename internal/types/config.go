package types

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config drives the orchestration layer. It is loaded from a YAML file; zero values fall back to the
// defaults in DefaultConfig.
// BaseURL is prefixed to every endpoint handed to the HTTP transport.
// AdminPort is the port of the admin HTTP surface. 0 disables it.
// RequestTimeoutSeconds bounds a single transport call; the core layer owns no timeout of its own.
type Config struct {
	BaseURL               string          `yaml:"base_url" json:"base_url"`
	LogLevel              string          `yaml:"log_level" json:"log_level"`
	AdminPort             int             `yaml:"admin_port" json:"admin_port"`
	RequestTimeoutSeconds int             `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
	Cache                 CacheConfig     `yaml:"cache" json:"cache"`
	Session               SessionConfig   `yaml:"session" json:"session"`
	Pagination            PagingConfig    `yaml:"pagination" json:"pagination"`
	RateLimit             RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	AuthAlert             AlertConfig     `yaml:"auth_alert" json:"auth_alert"`
}

type CacheConfig struct {
	MaxSize                int `yaml:"max_size" json:"max_size"`
	DefaultTTLSeconds      int `yaml:"default_ttl_seconds" json:"default_ttl_seconds"`
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds" json:"cleanup_interval_seconds"`
}

// SessionConfig drives the session guard.
// RefreshThresholdMinutes is how long before token expiry the orchestrator asks for a new token. 0 disables it.
// RefreshEndpoint is POSTed with the current token to obtain a new one. Empty disables refresh.
type SessionConfig struct {
	TimeoutMinutes          int    `yaml:"timeout_minutes" json:"timeout_minutes"`
	RefreshThresholdMinutes int    `yaml:"refresh_threshold_minutes" json:"refresh_threshold_minutes"`
	RefreshEndpoint         string `yaml:"refresh_endpoint" json:"refresh_endpoint"`
}

// PagingConfig configures paginated gets.
// TotalExpr is a JMESPath expression selecting the total item count from a page body, e.g. "meta.total".
type PagingConfig struct {
	ItemsPerPage int    `yaml:"items_per_page" json:"items_per_page"`
	TotalExpr    string `yaml:"total_expr" json:"total_expr"`
}

// RateLimitConfig caps transport calls per endpoint partition. 0 means no limit.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

type AlertConfig struct {
	SNSArn string `yaml:"sns_arn" json:"sns_arn"`
}

const (
	MinCacheSize          = 1
	DefaultCacheSize      = 1000
	DefaultCacheTTL       = 300 // seconds
	DefaultCleanupSeconds = 60
	DefaultTimeoutMinutes = 30
	DefaultItemsPerPage   = 20
	DefaultRequestTimeout = 30 // seconds
)

func DefaultConfig() Config {
	return Config{
		LogLevel:              "info",
		RequestTimeoutSeconds: DefaultRequestTimeout,
		Cache: CacheConfig{
			MaxSize:                DefaultCacheSize,
			DefaultTTLSeconds:      DefaultCacheTTL,
			CleanupIntervalSeconds: DefaultCleanupSeconds,
		},
		Session: SessionConfig{
			TimeoutMinutes:          DefaultTimeoutMinutes,
			RefreshThresholdMinutes: 5,
		},
		Pagination: PagingConfig{
			ItemsPerPage: DefaultItemsPerPage,
			TotalExpr:    "total",
		},
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, Err(ErrInvalidConfig, err, "read %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, Err(ErrInvalidConfig, err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Cache.MaxSize < MinCacheSize {
		return Err(ErrInvalidConfig, nil, "cache.max_size must be at least %d", MinCacheSize)
	}
	if c.Cache.DefaultTTLSeconds <= 0 {
		return Err(ErrInvalidConfig, nil, "cache.default_ttl_seconds must be positive")
	}
	if c.Cache.CleanupIntervalSeconds < 0 {
		return Err(ErrInvalidConfig, nil, "cache.cleanup_interval_seconds must be non-negative. 0 disables the janitor")
	}
	if c.Session.TimeoutMinutes <= 0 {
		return Err(ErrInvalidConfig, nil, "session.timeout_minutes must be positive")
	}
	if c.Session.RefreshThresholdMinutes < 0 {
		return Err(ErrInvalidConfig, nil, "session.refresh_threshold_minutes must be non-negative")
	}
	if c.Pagination.ItemsPerPage <= 0 {
		return Err(ErrInvalidConfig, nil, "pagination.items_per_page must be positive")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return Err(ErrInvalidConfig, nil, "rate_limit.requests_per_minute must be non-negative. 0 for no limit")
	}
	if c.RequestTimeoutSeconds < 0 {
		return Err(ErrInvalidConfig, nil, "request_timeout_seconds must be non-negative")
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		return Err(ErrInvalidConfig, nil, "admin_port %d out of range", c.AdminPort)
	}
	return nil
}

func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

func (c CacheConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

func (c SessionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

func (c SessionConfig) RefreshThreshold() time.Duration {
	return time.Duration(c.RefreshThresholdMinutes) * time.Minute
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) String() string {
	return fmt.Sprintf("base_url=%s cache.max_size=%d session.timeout_minutes=%d", c.BaseURL, c.Cache.MaxSize, c.Session.TimeoutMinutes)
}
