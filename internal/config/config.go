package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Listener  ListenerConfig  `mapstructure:"listener"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type IngestionConfig struct {
	Concurrency         int           `mapstructure:"concurrency"`
	ProviderTimeout     time.Duration `mapstructure:"provider_timeout"`
	Overlap             time.Duration `mapstructure:"overlap"`
	InitialLookbackDays int           `mapstructure:"initial_lookback_days"`
}

type MatchingConfig struct {
	Concurrency     int `mapstructure:"concurrency"`
	LookbackDays    int `mapstructure:"lookback_days"`
	AutoThreshold   int `mapstructure:"auto_threshold"`
	ReviewThreshold int `mapstructure:"review_threshold"`
}

// SchedulerConfig drives the daily tenant pipeline runs.
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Times        []string      `mapstructure:"times"`
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	JobDelay     time.Duration `mapstructure:"job_delay"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
	RunOnStartup bool          `mapstructure:"run_on_startup"`
}

type ListenerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

// ProvidersConfig selects the bank providers to register. The sandbox serves the
// statements in SandboxFile; without one it lists no accounts.
type ProvidersConfig struct {
	Sandbox     bool               `mapstructure:"sandbox"`
	SandboxFile string             `mapstructure:"sandbox_file"`
	HTTP        HTTPProviderConfig `mapstructure:"http"`
}

// HTTPProviderConfig registers an aggregator client under Name when BaseURL is set.
type HTTPProviderConfig struct {
	Name    string        `mapstructure:"name"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from an optional file and the environment. Keys map to
// env vars by upper-casing and replacing dots with underscores (DATABASE_URL,
// SCHEDULER_TIMES, ...). CONFIG_FILE points at a YAML or TOML file.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ingestion.concurrency", 4)
	v.SetDefault("ingestion.provider_timeout", 60*time.Second)
	v.SetDefault("ingestion.overlap", 72*time.Hour)
	v.SetDefault("ingestion.initial_lookback_days", 90)
	v.SetDefault("matching.concurrency", 4)
	v.SetDefault("matching.lookback_days", 30)
	v.SetDefault("matching.auto_threshold", 70)
	v.SetDefault("matching.review_threshold", 40)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.times", []string{"06:00", "18:00"})
	v.SetDefault("scheduler.workers", 3)
	v.SetDefault("scheduler.queue_size", 100)
	v.SetDefault("scheduler.job_delay", time.Duration(0))
	v.SetDefault("scheduler.job_timeout", 10*time.Minute)
	v.SetDefault("scheduler.run_on_startup", false)
	v.SetDefault("listener.enabled", false)
	v.SetDefault("listener.channel", "bank_sync_completed")
	v.SetDefault("providers.sandbox", false)
	v.SetDefault("providers.sandbox_file", "")
	v.SetDefault("providers.http.name", "aggregator")
	v.SetDefault("providers.http.base_url", "")
	v.SetDefault("providers.http.api_key", "")
	v.SetDefault("providers.http.timeout", 60*time.Second)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Matching.ReviewThreshold <= 0 || c.Matching.AutoThreshold < c.Matching.ReviewThreshold {
		errs = append(errs, fmt.Errorf("matching thresholds must satisfy 0 < review (%d) <= auto (%d)",
			c.Matching.ReviewThreshold, c.Matching.AutoThreshold))
	}
	if c.Ingestion.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("ingestion.provider_timeout must be positive"))
	}
	if c.Scheduler.Enabled && len(c.Scheduler.Times) == 0 {
		errs = append(errs, errors.New("scheduler.times is required when the scheduler is enabled"))
	}
	if c.Listener.Enabled && c.Listener.Channel == "" {
		errs = append(errs, errors.New("listener.channel is required when the listener is enabled"))
	}
	return errors.Join(errs...)
}
