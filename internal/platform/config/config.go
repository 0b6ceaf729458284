// Package config loads engine configuration from environment variables and
// an optional config file. Every knob has a default so a bare binary starts
// against in-memory stores and fake collaborators.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig selects handler format and verbosity.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// RegistryConfig tunes the occupancy cache.
type RegistryConfig struct {
	CacheTTL        time.Duration
	FetchBatchSize  int
	FetchBatchDelay time.Duration
}

// SchedulerConfig tunes batch execution.
type SchedulerConfig struct {
	Workers     int
	SubmitDelay time.Duration
	MaxPerBatch int
}

// QuotaConfig bounds how many domains the project may hold and how many it
// may submit per UTC day. Daily <= 0 disables the daily gate.
type QuotaConfig struct {
	Project int
	Daily   int
}

// RetryConfig bounds collaborator call retries.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// PollerConfig drives provisioning status polling.
type PollerConfig struct {
	Interval time.Duration
	Deadline time.Duration
}

// HostingConfig points at the hosting platform API.
type HostingConfig struct {
	BaseURL string
	Project string
	Token   string
	Ingress string // IP or hostname DNS records should route to
}

// RegistrarConfig points at the registrar API.
type RegistrarConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	ShopperID string
}

// RedisConfig configures the optional Redis-backed stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional batch run archive.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig configures the optional event publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Config is the root engine configuration.
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Registry    RegistryConfig
	Scheduler   SchedulerConfig
	Quota       QuotaConfig
	Retry       RetryConfig
	Poller      PollerConfig
	Hosting     HostingConfig
	Registrar   RegistrarConfig
	Redis       RedisConfig
	Postgres    PostgresConfig
	Kafka       KafkaConfig
	SiteMapPath string
}

// Load reads configuration with precedence env > file > defaults. Env keys
// use the HANGAR_ prefix with underscores (HANGAR_SERVER_ADDR, and so on).
// path may be empty; a missing default config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HANGAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("hangar")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hangar")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Registry: RegistryConfig{
			CacheTTL:        v.GetDuration("registry.cache_ttl"),
			FetchBatchSize:  v.GetInt("registry.fetch_batch_size"),
			FetchBatchDelay: v.GetDuration("registry.fetch_batch_delay"),
		},
		Scheduler: SchedulerConfig{
			Workers:     v.GetInt("scheduler.workers"),
			SubmitDelay: v.GetDuration("scheduler.submit_delay"),
			MaxPerBatch: v.GetInt("scheduler.max_per_batch"),
		},
		Quota: QuotaConfig{
			Project: v.GetInt("quota.project"),
			Daily:   v.GetInt("quota.daily"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			BackoffBase: v.GetDuration("retry.backoff_base"),
			BackoffCap:  v.GetDuration("retry.backoff_cap"),
		},
		Poller: PollerConfig{
			Interval: v.GetDuration("poller.interval"),
			Deadline: v.GetDuration("poller.deadline"),
		},
		Hosting: HostingConfig{
			BaseURL: v.GetString("hosting.base_url"),
			Project: v.GetString("hosting.project"),
			Token:   v.GetString("hosting.token"),
			Ingress: v.GetString("hosting.ingress"),
		},
		Registrar: RegistrarConfig{
			BaseURL:   v.GetString("registrar.base_url"),
			APIKey:    v.GetString("registrar.api_key"),
			APISecret: v.GetString("registrar.api_secret"),
			ShopperID: v.GetString("registrar.shopper_id"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
		},
		Postgres: PostgresConfig{
			DSN: v.GetString("postgres.dsn"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		SiteMapPath: v.GetString("sitemap.path"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("registry.cache_ttl", time.Hour)
	v.SetDefault("registry.fetch_batch_size", 5)
	v.SetDefault("registry.fetch_batch_delay", 500*time.Millisecond)
	v.SetDefault("scheduler.workers", 3)
	v.SetDefault("scheduler.submit_delay", 2*time.Second)
	v.SetDefault("scheduler.max_per_batch", 30)
	v.SetDefault("quota.project", 200)
	v.SetDefault("quota.daily", 0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_base", 1*time.Second)
	v.SetDefault("retry.backoff_cap", 30*time.Second)
	v.SetDefault("poller.interval", 60*time.Second)
	v.SetDefault("poller.deadline", 30*time.Minute)
	v.SetDefault("hosting.project", "hangar")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("kafka.topic", "hangar.provisioning")
}

// Validate rejects configurations the engine cannot run with. Called at
// startup so bad deployments fail before taking traffic.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text; got %q", c.Log.Format)
	}
	if c.Registry.CacheTTL <= 0 {
		return fmt.Errorf("registry.cache_ttl must be positive")
	}
	if c.Registry.FetchBatchSize < 1 {
		return fmt.Errorf("registry.fetch_batch_size must be at least 1")
	}
	if c.Registry.FetchBatchDelay < 0 {
		return fmt.Errorf("registry.fetch_batch_delay cannot be negative")
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be at least 1")
	}
	if c.Scheduler.SubmitDelay < 0 {
		return fmt.Errorf("scheduler.submit_delay cannot be negative")
	}
	if c.Scheduler.MaxPerBatch < 1 {
		return fmt.Errorf("scheduler.max_per_batch must be at least 1")
	}
	if c.Quota.Project < 0 {
		return fmt.Errorf("quota.project cannot be negative")
	}
	if c.Quota.Daily < 0 {
		return fmt.Errorf("quota.daily cannot be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BackoffBase <= 0 || c.Retry.BackoffCap < c.Retry.BackoffBase {
		return fmt.Errorf("retry backoff must satisfy 0 < base <= cap")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive")
	}
	if c.Poller.Deadline < c.Poller.Interval {
		return fmt.Errorf("poller.deadline must be at least one interval")
	}
	return nil
}
