// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Extraction  ExtractionConfig  `mapstructure:"extraction"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Store       StoreConfig       `mapstructure:"store"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Storage     StorageConfig     `mapstructure:"storage"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Summary     SummaryConfig     `mapstructure:"summary"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	ShutdownSeconds       int `mapstructure:"shutdown_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ExtractionConfig configures the headless browser and the extraction pipeline.
type ExtractionConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	BaseURL              string  `mapstructure:"base_url"`
	UserAgent            string  `mapstructure:"user_agent"`
	ChromePath           string  `mapstructure:"chrome_path"`
	MaxSessions          int     `mapstructure:"max_sessions"`
	NavTimeoutSeconds    int     `mapstructure:"nav_timeout_seconds"`
	SignInTimeoutSeconds int     `mapstructure:"sign_in_timeout_seconds"`
	OrganizationWaitSecs int     `mapstructure:"organization_wait_seconds"`
	PostsWaitSeconds     int     `mapstructure:"posts_wait_seconds"`
	PeopleWaitSeconds    int     `mapstructure:"people_wait_seconds"`
	CommentsWaitSeconds  int     `mapstructure:"comments_wait_seconds"`
	MaxPosts             int     `mapstructure:"max_posts"`
	MaxPostScrolls       int     `mapstructure:"max_post_scrolls"`
	MaxPeople            int     `mapstructure:"max_people"`
	MaxComments          int     `mapstructure:"max_comments"`
	ScrollPauseMillis    int     `mapstructure:"scroll_pause_ms"`
	RequestsPerSecond    float64 `mapstructure:"requests_per_second"`
	Burst                int     `mapstructure:"burst"`
}

// CredentialsConfig holds the optional sign-in account.
type CredentialsConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// ResolverConfig bounds store reads and composite acquisitions.
type ResolverConfig struct {
	CommentPosts  int    `mapstructure:"comment_posts"`
	ListLimit     int    `mapstructure:"list_limit"`
	AcquiredTopic string `mapstructure:"acquired_topic"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Driver                 string `mapstructure:"driver"`
	DSN                    string `mapstructure:"dsn"`
	Schema                 string `mapstructure:"schema"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// CacheConfig selects and configures the response cache.
type CacheConfig struct {
	Driver     string `mapstructure:"driver"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	PoolSize   int    `mapstructure:"pool_size"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// StorageConfig sets where rendered-page snapshots are archived.
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for acquisition notifications.
type PubSubConfig struct {
	Driver    string `mapstructure:"driver"`
	ProjectID string `mapstructure:"project_id"`
}

// SummaryConfig points at an OpenAI-compatible chat endpoint.
type SummaryConfig struct {
	BaseURL         string  `mapstructure:"base_url"`
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float64 `mapstructure:"temperature"`
	CacheTTLSeconds int     `mapstructure:"cache_ttl_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("server.shutdown_seconds", 15)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("extraction.enabled", true)
	v.SetDefault("extraction.base_url", "https://www.linkedin.com")
	v.SetDefault("extraction.user_agent", "")
	v.SetDefault("extraction.chrome_path", "")
	v.SetDefault("extraction.max_sessions", 2)
	v.SetDefault("extraction.nav_timeout_seconds", 45)
	v.SetDefault("extraction.sign_in_timeout_seconds", 10)
	v.SetDefault("extraction.organization_wait_seconds", 10)
	v.SetDefault("extraction.posts_wait_seconds", 10)
	v.SetDefault("extraction.people_wait_seconds", 5)
	v.SetDefault("extraction.comments_wait_seconds", 5)
	v.SetDefault("extraction.max_posts", 15)
	v.SetDefault("extraction.max_post_scrolls", 10)
	v.SetDefault("extraction.max_people", 100)
	v.SetDefault("extraction.max_comments", 100)
	v.SetDefault("extraction.scroll_pause_ms", 2000)
	v.SetDefault("extraction.requests_per_second", 0.5)
	v.SetDefault("extraction.burst", 1)
	v.SetDefault("credentials.email", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("resolver.comment_posts", 5)
	v.SetDefault("resolver.list_limit", 100)
	v.SetDefault("resolver.acquired_topic", "organization.acquired")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.schema", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime_minutes", 30)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("cache.addr", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.key_prefix", "insights:")
	v.SetDefault("storage.driver", "none")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "data/snapshots")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("pubsub.driver", "none")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("summary.base_url", "")
	v.SetDefault("summary.api_key", "")
	v.SetDefault("summary.model", "gpt-4o-mini")
	v.SetDefault("summary.temperature", 0.2)
	v.SetDefault("summary.cache_ttl_seconds", 3600)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Extraction.Enabled {
		if c.Extraction.BaseURL == "" {
			return fmt.Errorf("extraction.base_url must be set when extraction is enabled")
		}
		if c.Extraction.MaxSessions < 0 {
			return fmt.Errorf("extraction.max_sessions must be >= 0")
		}
		if c.Extraction.RequestsPerSecond < 0 {
			return fmt.Errorf("extraction.requests_per_second must be >= 0")
		}
	}
	if (c.Credentials.Email == "") != (c.Credentials.Password == "") {
		return fmt.Errorf("credentials.email and credentials.password must be set together")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.driver is postgres")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Cache.Driver {
	case "none", "memory":
	case "redis":
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr must be set when cache.driver is redis")
		}
	default:
		return fmt.Errorf("unknown cache.driver %q", c.Cache.Driver)
	}
	switch c.Storage.Driver {
	case "none", "memory", "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.driver is gcs")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.PubSub.Driver {
	case "none", "memory":
	case "gcp":
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set when pubsub.driver is gcp")
		}
	default:
		return fmt.Errorf("unknown pubsub.driver %q", c.PubSub.Driver)
	}
	return nil
}

// RequestTimeout bounds a single HTTP request, including live extraction.
func (c Config) RequestTimeout() time.Duration {
	return Seconds(c.Server.RequestTimeoutSeconds)
}

// CacheTTL is the default cache entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return Seconds(c.Cache.TTLSeconds)
}

// Seconds converts a whole-second knob to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
