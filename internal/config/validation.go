package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgnsrekt/tbbo-ingest/internal/batch"
)

// FieldError is one invalid configuration key.
type FieldError struct {
	Key     string
	Problem string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Fields []FieldError
}

func (e *ValidationErrors) add(key, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Key: key, Problem: fmt.Sprintf(format, args...)})
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Key, f.Problem))
	}
	return sb.String()
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Input.Directory == "" {
		errs.add("input.directory", "is required")
	}
	if _, err := filepath.Match(c.Input.Pattern, ""); err != nil || c.Input.Pattern == "" {
		errs.add("input.pattern", "%q is not a valid glob", c.Input.Pattern)
	}

	validateSink(errs, c.Sink)
	validateRetry(errs, c.Retry)

	if c.Batch.ChunkSize < batch.MinChunkSize || c.Batch.ChunkSize > batch.MaxChunkSize {
		errs.add("batch.chunk_size", "%d out of range [%d, %d]", c.Batch.ChunkSize, batch.MinChunkSize, batch.MaxChunkSize)
	}
	if c.Batch.MaxBytes < batch.MinMaxBytes {
		errs.add("batch.max_bytes", "%d below minimum %d", c.Batch.MaxBytes, batch.MinMaxBytes)
	}
	if c.Pipeline.InFlight < 1 || c.Pipeline.InFlight > MaxInFlight {
		errs.add("pipeline.in_flight", "%d out of range [1, %d]", c.Pipeline.InFlight, MaxInFlight)
	}

	switch c.Checkpoint.Backend {
	case CheckpointFile:
		if c.Checkpoint.Directory == "" {
			errs.add("checkpoint.directory", "is required for the file backend")
		}
	case CheckpointSQLite:
		if c.Checkpoint.SQLitePath == "" {
			errs.add("checkpoint.sqlite_path", "is required for the sqlite backend")
		}
	default:
		errs.add("checkpoint.backend", "%q must be %q or %q", c.Checkpoint.Backend, CheckpointFile, CheckpointSQLite)
	}

	if c.Watch.IntervalSec < 1 {
		errs.add("watch.interval_sec", "must be >= 1")
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs.add("logging.level", "%q must be one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Notify.Enabled {
		if c.Notify.Topic == "" {
			errs.add("notify.topic", "is required when notifications are enabled")
		}
		if !validPriorities[c.Notify.Priority] {
			errs.add("notify.priority", "%q must be one of min, low, default, high, urgent", c.Notify.Priority)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateSink(errs *ValidationErrors, s SinkConfig) {
	switch s.Protocol {
	case ProtocolILP:
		if s.Flavor != FlavorQuestDB {
			errs.add("sink.protocol", "ilp ingest requires flavor %q", FlavorQuestDB)
		}
		if s.ILPPort < 1 || s.ILPPort > 65535 {
			errs.add("sink.ilp_port", "%d is not a valid port", s.ILPPort)
		}
	case ProtocolCopy:
		if s.Flavor != FlavorPostgres {
			errs.add("sink.protocol", "copy ingest requires flavor %q", FlavorPostgres)
		}
	default:
		errs.add("sink.protocol", "%q must be %q or %q", s.Protocol, ProtocolILP, ProtocolCopy)
	}

	if s.Flavor != FlavorQuestDB && s.Flavor != FlavorPostgres {
		errs.add("sink.flavor", "%q must be %q or %q", s.Flavor, FlavorQuestDB, FlavorPostgres)
	}
	if s.Host == "" {
		errs.add("sink.host", "is required")
	}
	if s.PGPort < 1 || s.PGPort > 65535 {
		errs.add("sink.pg_port", "%d is not a valid port", s.PGPort)
	}
	if !validIdentifier(s.Table) {
		errs.add("sink.table", "%q is not a valid table name", s.Table)
	}
	if s.Dedup && s.Flavor != FlavorQuestDB {
		errs.add("sink.dedup", "upsert keys are only supported with flavor %q", FlavorQuestDB)
	}
	if s.RatePerSecond < 0 {
		errs.add("sink.rate_per_second", "must be >= 0")
	}
	if s.TimeoutSec < 1 {
		errs.add("sink.timeout_sec", "must be >= 1")
	}
	if s.MaxConns < 1 || s.MinConns < 0 || s.MinConns > s.MaxConns {
		errs.add("sink.max_conns", "need 0 <= min_conns <= max_conns and max_conns >= 1")
	}
}

func validateRetry(errs *ValidationErrors, r RetryConfig) {
	if r.MaxAttempts < 1 {
		errs.add("retry.max_attempts", "must be >= 1")
	}
	if r.BackoffBaseMs < 1 {
		errs.add("retry.backoff_base_ms", "must be >= 1")
	}
	if r.MaxBackoffMs < r.BackoffBaseMs {
		errs.add("retry.max_backoff_ms", "must be >= backoff_base_ms")
	}
	if r.AttemptTimeoutSec < 1 {
		errs.add("retry.attempt_timeout_sec", "must be >= 1")
	}
}

// validIdentifier accepts names that are safe to interpolate into DDL.
func validIdentifier(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
