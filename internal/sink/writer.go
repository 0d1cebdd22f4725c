package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/config"
	"github.com/dgnsrekt/tbbo-ingest/internal/database"
	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// Writer commits a batch to the sink as one logical unit.
type Writer interface {
	Write(ctx context.Context, b *model.Batch) error
	Close() error
}

// Pinger is implemented by writers that can check sink reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the configured bulk writer wrapped in a RetryWriter.
func New(ctx context.Context, cfg config.SinkConfig, retry config.RetryConfig, logger *zap.Logger) (Writer, error) {
	var base Writer
	switch cfg.Protocol {
	case config.ProtocolILP:
		base = NewILPWriter(cfg, logger)
	case config.ProtocolCopy:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connecting sink: %w", err)
		}
		base = NewCopyWriter(pool, cfg.Table, logger, WithPoolOwnership())
	default:
		return nil, fmt.Errorf("unknown sink protocol %q", cfg.Protocol)
	}

	return NewRetryWriter(base, PolicyFromConfig(retry), logger), nil
}

// DryRunWriter accepts every batch without contacting a sink.
type DryRunWriter struct {
	logger  *zap.Logger
	Batches int
	Rows    int
}

func NewDryRunWriter(logger *zap.Logger) *DryRunWriter {
	return &DryRunWriter{logger: logger}
}

func (w *DryRunWriter) Write(_ context.Context, b *model.Batch) error {
	w.Batches++
	w.Rows += b.Len()
	w.logger.Debug("dry run: batch discarded",
		zap.String("file", b.FileID),
		zap.Int("seq", b.Seq),
		zap.Int("rows", b.Len()),
		zap.Uint64("end_offset", b.EndOffset))
	return nil
}

func (w *DryRunWriter) Close() error { return nil }
