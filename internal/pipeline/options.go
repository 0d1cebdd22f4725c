package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dgnsrekt/tbbo-ingest/internal/batch"
	"github.com/dgnsrekt/tbbo-ingest/internal/config"
)

// DefaultInFlight is the number of batches held in memory at once, including
// the one being committed.
const DefaultInFlight = 2

// Options tune a pipeline run.
type Options struct {
	ChunkSize int
	MaxBytes  int
	InFlight  int
	RunID     string
	Tracker   *Tracker
}

// OptionsFromConfig maps the loaded configuration onto run options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ChunkSize: cfg.Batch.ChunkSize,
		MaxBytes:  cfg.Batch.MaxBytes,
		InFlight:  cfg.Pipeline.InFlight,
	}
}

func (o *Options) setDefaults() {
	if o.ChunkSize == 0 {
		o.ChunkSize = batch.DefaultChunkSize
	}
	if o.MaxBytes == 0 {
		o.MaxBytes = batch.DefaultMaxBytes
	}
	if o.InFlight == 0 {
		o.InFlight = DefaultInFlight
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
}

func (o *Options) validate() error {
	if o.InFlight < 1 || o.InFlight > config.MaxInFlight {
		return fmt.Errorf("in-flight batches %d out of range [1, %d]", o.InFlight, config.MaxInFlight)
	}
	return nil
}
