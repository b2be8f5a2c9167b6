// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/logging"
)

// EnvPrefix namespaces every environment override, e.g. FLIGHTS_BATCH_N_JOBS.
const EnvPrefix = "FLIGHTS"

// SearchPaths are the directories searched for config.{yaml,json,toml} when
// no explicit path is given.
var SearchPaths = []string{".", "/etc/flightfares", "$HOME/.flightfares"}

// Queue backends accepted by server.queue.
const (
	QueueMemory = "memory"
	QueuePubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Batch     BatchConfig     `mapstructure:"batch"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// BatchConfig holds the default scheduling policy. Durations are seconds.
type BatchConfig struct {
	NJobs       int     `mapstructure:"n_jobs"`
	TaskTimeout float64 `mapstructure:"task_timeout"`
	Delay       float64 `mapstructure:"delay_seconds"`
	DelayJitter float64 `mapstructure:"delay_jitter"`
	Shuffle     bool    `mapstructure:"shuffle"`
}

// Policy converts the section into a batch.Policy.
func (b BatchConfig) Policy() batch.Policy {
	return batch.Policy{
		Jobs:        b.NJobs,
		TaskTimeout: seconds(b.TaskTimeout),
		Delay:       seconds(b.Delay),
		DelayJitter: seconds(b.DelayJitter),
	}
}

// ScraperConfig configures the headless browser collaborator.
type ScraperConfig struct {
	Headless          bool    `mapstructure:"headless"`
	UserAgent         string  `mapstructure:"user_agent"`
	BaseURL           string  `mapstructure:"base_url"`
	ChromePath        string  `mapstructure:"chrome_path"`
	PageTimeout       float64 `mapstructure:"page_timeout"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StepTimeout is PageTimeout as a duration.
func (s ScraperConfig) StepTimeout() time.Duration {
	return seconds(s.PageTimeout)
}

// ServerConfig controls HTTP server behavior and the batch worker pool.
type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	Workers         int    `mapstructure:"workers"`
	QueueDepth      int    `mapstructure:"queue_depth"`
	Queue           string `mapstructure:"queue"`
	RequestTimeout  int    `mapstructure:"request_timeout_seconds"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// StorageConfig selects where exported batches land.
type StorageConfig struct {
	// Sink is the default export URI; empty skips export.
	Sink      string `mapstructure:"sink"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres. An empty DSN keeps everything in memory.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for batch notifications and the optional
// Pub/Sub backed job queue.
type PubSubConfig struct {
	ProjectID         string `mapstructure:"project_id"`
	Topic             string `mapstructure:"topic"`
	QueueTopic        string `mapstructure:"queue_topic"`
	QueueSubscription string `mapstructure:"queue_subscription"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Tracing     bool   `mapstructure:"tracing"`
}

// LoadDotenv reads .env and then .env.$APP_ENV into the process
// environment. Missing files are not an error; the second file overrides the
// first.
func LoadDotenv(dir string) error {
	base := ".env"
	if dir != "" {
		base = dir + string(os.PathSeparator) + ".env"
	}
	if err := godotenv.Load(base); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", base, err)
	}
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		return nil
	}
	envFile := base + "." + appEnv
	if err := godotenv.Overload(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		for _, dir := range SearchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("batch.n_jobs", batch.DefaultJobs)
	v.SetDefault("batch.task_timeout", batch.DefaultTaskTimeout.Seconds())
	v.SetDefault("batch.delay_seconds", batch.DefaultDelay.Seconds())
	v.SetDefault("batch.delay_jitter", batch.DefaultDelayJitter.Seconds())
	v.SetDefault("batch.shuffle", true)
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.user_agent", "")
	v.SetDefault("scraper.base_url", "")
	v.SetDefault("scraper.chrome_path", "")
	v.SetDefault("scraper.page_timeout", 10)
	v.SetDefault("scraper.requests_per_second", 0.5)
	v.SetDefault("scraper.burst", 1)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age_days", 28)
	v.SetDefault("logging.file.compress", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.workers", 2)
	v.SetDefault("server.queue_depth", 64)
	v.SetDefault("server.queue", QueueMemory)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("storage.sink", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "batches")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "flight_records")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("pubsub.queue_topic", "")
	v.SetDefault("pubsub.queue_subscription", "")
	v.SetDefault("telemetry.service_name", "flight-fare-crawler")
	v.SetDefault("telemetry.tracing", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Batch.Policy().Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if c.Scraper.PageTimeout <= 0 {
		return fmt.Errorf("scraper.page_timeout must be > 0")
	}
	if c.Scraper.RequestsPerSecond < 0 {
		return fmt.Errorf("scraper.requests_per_second must be >= 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be > 0")
	}
	if c.Server.QueueDepth <= 0 {
		return fmt.Errorf("server.queue_depth must be > 0")
	}
	switch c.Server.Queue {
	case QueueMemory:
	case QueuePubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.QueueTopic == "" || c.PubSub.QueueSubscription == "" {
			return fmt.Errorf("pubsub.project_id, queue_topic and queue_subscription are required for the pubsub queue")
		}
	default:
		return fmt.Errorf("server.queue must be %q or %q", QueueMemory, QueuePubSub)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if strings.HasPrefix(c.Storage.Sink, "gs://") && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for a gs:// sink")
	}
	return nil
}

// RequestTimeout converts the server timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// ShutdownTimeout converts the graceful shutdown budget into a duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
