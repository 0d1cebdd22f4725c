package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Input: InputConfig{Directory: "data", Pattern: DefaultPattern},
		Sink: SinkConfig{
			Protocol: ProtocolILP, Flavor: FlavorQuestDB, Host: "localhost",
			ILPPort: 9000, PGPort: 8812, Table: "tbbo", TimeoutSec: 30,
			MinConns: 1, MaxConns: 4,
		},
		Retry:      RetryConfig{MaxAttempts: 3, BackoffBaseMs: 100, MaxBackoffMs: 1000, AttemptTimeoutSec: 10},
		Batch:      BatchConfig{ChunkSize: 1000, MaxBytes: 8 << 20},
		Pipeline:   PipelineConfig{InFlight: 2},
		Checkpoint: CheckpointConfig{Backend: CheckpointFile, Directory: "cp"},
		Watch:      WatchConfig{IntervalSec: 60},
		Logging:    LoggingConfig{Level: "info"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error for valid config, got: %v", err)
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"chunk below minimum", func(c *Config) { c.Batch.ChunkSize = 24 }, "batch.chunk_size"},
		{"chunk above maximum", func(c *Config) { c.Batch.ChunkSize = 100_001 }, "batch.chunk_size"},
		{"tiny byte ceiling", func(c *Config) { c.Batch.MaxBytes = 1024 }, "batch.max_bytes"},
		{"no in-flight", func(c *Config) { c.Pipeline.InFlight = 0 }, "pipeline.in_flight"},
		{"unknown protocol", func(c *Config) { c.Sink.Protocol = "grpc" }, "sink.protocol"},
		{"copy into questdb", func(c *Config) { c.Sink.Protocol = ProtocolCopy }, "sink.protocol"},
		{"ilp into postgres", func(c *Config) { c.Sink.Flavor = FlavorPostgres }, "sink.protocol"},
		{"table injection", func(c *Config) { c.Sink.Table = "tbbo; DROP TABLE x" }, "sink.table"},
		{"leading digit table", func(c *Config) { c.Sink.Table = "1tbbo" }, "sink.table"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"cap below base", func(c *Config) { c.Retry.MaxBackoffMs = 10 }, "retry.max_backoff_ms"},
		{"unknown backend", func(c *Config) { c.Checkpoint.Backend = "redis" }, "checkpoint.backend"},
		{"sqlite without path", func(c *Config) { c.Checkpoint.Backend = CheckpointSQLite }, "checkpoint.sqlite_path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad glob", func(c *Config) { c.Input.Pattern = "[" }, "input.pattern"},
		{"notify without topic", func(c *Config) { c.Notify.Enabled = true }, "notify.topic"},
		{"notify bad priority", func(c *Config) { c.Notify.Enabled, c.Notify.Topic, c.Notify.Priority = true, "t", "loud" }, "notify.priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected *ValidationErrors, got %T", err)
			}
			found := false
			for _, f := range verrs.Fields {
				if f.Key == tt.key {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a problem for %s, got: %v", tt.key, err)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Batch.ChunkSize = 1
	cfg.Sink.Host = ""
	cfg.Retry.MaxAttempts = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	msg := err.Error()
	for _, key := range []string{"batch.chunk_size", "sink.host", "retry.max_attempts"} {
		if !strings.Contains(msg, key) {
			t.Errorf("error should mention %s, got: %v", key, msg)
		}
	}
}
