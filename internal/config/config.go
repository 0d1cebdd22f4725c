package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Input      InputConfig      `mapstructure:"input"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Status     StatusConfig     `mapstructure:"status"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type InputConfig struct {
	Directory string `mapstructure:"directory"`
	Pattern   string `mapstructure:"pattern"`
}

type SinkConfig struct {
	Protocol      string  `mapstructure:"protocol"` // "ilp" or "copy"
	Flavor        string  `mapstructure:"flavor"`   // "questdb" or "postgres"
	Host          string  `mapstructure:"host"`
	ILPPort       int     `mapstructure:"ilp_port"`
	PGPort        int     `mapstructure:"pg_port"`
	User          string  `mapstructure:"user"`
	Password      string  `mapstructure:"password"`
	Database      string  `mapstructure:"database"`
	SSLMode       string  `mapstructure:"sslmode"`
	Table         string  `mapstructure:"table"`
	Dedup         bool    `mapstructure:"dedup"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	TimeoutSec    int     `mapstructure:"timeout_sec"`
	MinConns      int     `mapstructure:"min_conns"`
	MaxConns      int     `mapstructure:"max_conns"`
}

type RetryConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts"`
	BackoffBaseMs     int `mapstructure:"backoff_base_ms"`
	MaxBackoffMs      int `mapstructure:"max_backoff_ms"`
	AttemptTimeoutSec int `mapstructure:"attempt_timeout_sec"`
}

type BatchConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	MaxBytes  int `mapstructure:"max_bytes"`
}

type PipelineConfig struct {
	InFlight int `mapstructure:"in_flight"`
}

type CheckpointConfig struct {
	Backend    string `mapstructure:"backend"` // "file" or "sqlite"
	Directory  string `mapstructure:"directory"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the status server
}

type WatchConfig struct {
	IntervalSec int `mapstructure:"interval_sec"`
}

type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// NotifyConfig holds ntfy notification settings.
type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Server   string `mapstructure:"server"`   // default: https://ntfy.sh
	Topic    string `mapstructure:"topic"`    // required if enabled
	Priority string `mapstructure:"priority"` // min, low, default, high, urgent
	Tags     string `mapstructure:"tags"`     // comma-separated emoji tags
	Token    string `mapstructure:"token"`    // optional, for private topics
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("input.directory", "data")
	v.SetDefault("input.pattern", DefaultPattern)
	v.SetDefault("sink.protocol", ProtocolILP)
	v.SetDefault("sink.flavor", FlavorQuestDB)
	v.SetDefault("sink.host", "localhost")
	v.SetDefault("sink.ilp_port", 9000)
	v.SetDefault("sink.pg_port", 8812)
	v.SetDefault("sink.user", "admin")
	v.SetDefault("sink.password", "quest")
	v.SetDefault("sink.database", "qdb")
	v.SetDefault("sink.sslmode", "disable")
	v.SetDefault("sink.table", "tbbo")
	v.SetDefault("sink.dedup", false)
	v.SetDefault("sink.rate_per_second", 0)
	v.SetDefault("sink.timeout_sec", 60)
	v.SetDefault("sink.min_conns", 1)
	v.SetDefault("sink.max_conns", 4)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.backoff_base_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30_000)
	v.SetDefault("retry.attempt_timeout_sec", 60)
	v.SetDefault("batch.chunk_size", 1000)
	v.SetDefault("batch.max_bytes", 8<<20)
	v.SetDefault("pipeline.in_flight", 2)
	v.SetDefault("checkpoint.backend", CheckpointFile)
	v.SetDefault("checkpoint.directory", "data/.checkpoints")
	v.SetDefault("checkpoint.sqlite_path", "data/.checkpoints/checkpoints.db")
	v.SetDefault("status.addr", "")
	v.SetDefault("watch.interval_sec", 60)
	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "inbox_tray")
	v.SetDefault("notify.token", "")

	// Environment variable support
	v.SetEnvPrefix("TBBO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Legacy QuestDB variables from the docker-compose setup
	_ = v.BindEnv("sink.host", "TBBO_SINK_HOST", "QUESTDB_HOST")
	_ = v.BindEnv("sink.pg_port", "TBBO_SINK_PG_PORT", "QUESTDB_PORT")
	_ = v.BindEnv("sink.user", "TBBO_SINK_USER", "QUESTDB_USER")
	_ = v.BindEnv("sink.password", "TBBO_SINK_PASSWORD", "QUESTDB_PASSWORD")
	_ = v.BindEnv("sink.database", "TBBO_SINK_DATABASE", "QUESTDB_DATABASE")
	_ = v.BindEnv("notify.enabled", "TBBO_NOTIFY_ENABLED", "NTFY_ENABLED")
	_ = v.BindEnv("notify.server", "TBBO_NOTIFY_SERVER", "NTFY_SERVER")
	_ = v.BindEnv("notify.topic", "TBBO_NOTIFY_TOPIC", "NTFY_TOPIC")
	_ = v.BindEnv("notify.priority", "TBBO_NOTIFY_PRIORITY", "NTFY_PRIORITY")
	_ = v.BindEnv("notify.tags", "TBBO_NOTIFY_TAGS", "NTFY_TAGS")
	_ = v.BindEnv("notify.token", "TBBO_NOTIFY_TOKEN", "NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (r RetryConfig) BackoffBase() time.Duration {
	return time.Duration(r.BackoffBaseMs) * time.Millisecond
}

func (r RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMs) * time.Millisecond
}

func (r RetryConfig) AttemptTimeout() time.Duration {
	return time.Duration(r.AttemptTimeoutSec) * time.Second
}

func (s SinkConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

func (w WatchConfig) Interval() time.Duration {
	return time.Duration(w.IntervalSec) * time.Second
}

// Location returns the directory or database path for the
// configured backend.
func (c CheckpointConfig) Location() string {
	if c.Backend == CheckpointSQLite {
		return c.SQLitePath
	}
	return c.Directory
}
