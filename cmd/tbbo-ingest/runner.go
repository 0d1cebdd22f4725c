package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/checkpoint"
	"github.com/dgnsrekt/tbbo-ingest/internal/model"
	"github.com/dgnsrekt/tbbo-ingest/internal/notify"
	"github.com/dgnsrekt/tbbo-ingest/internal/pipeline"
	"github.com/dgnsrekt/tbbo-ingest/internal/sink"
	"github.com/dgnsrekt/tbbo-ingest/internal/status"
)

// runner holds what an ingest run needs across repeated invocations.
type runner struct {
	store    checkpoint.Store
	writer   sink.Writer
	tracker  *pipeline.Tracker
	notifier notify.Notifier
}

func newRunner(ctx context.Context, dryRun bool) (*runner, error) {
	r := &runner{tracker: pipeline.NewTracker()}

	store, err := openStore()
	if err != nil {
		return nil, err
	}

	if dryRun {
		// Resume from real progress without touching it.
		mem := checkpoint.NewMemoryStore()
		cps, err := store.List(ctx)
		_ = store.Close()
		if err != nil {
			return nil, fmt.Errorf("listing checkpoints: %w", err)
		}
		for _, cp := range cps {
			_ = mem.Save(ctx, cp)
		}
		r.store = mem
		r.writer = sink.NewDryRunWriter(logger)
		r.notifier = &notify.NoopNotifier{}
		return r, nil
	}

	w, err := sink.New(ctx, cfg.Sink, cfg.Retry, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	r.store = store
	r.writer = w
	r.notifier = notify.New(cfg.Notify, logger)
	return r, nil
}

func (r *runner) Close() {
	if err := r.writer.Close(); err != nil {
		logger.Warn("closing sink", zap.Error(err))
	}
	if err := r.store.Close(); err != nil {
		logger.Warn("closing checkpoint store", zap.Error(err))
	}
}

// serveStatus starts the status endpoint when configured. It stops with ctx.
func (r *runner) serveStatus(ctx context.Context) {
	if cfg.Status.Addr == "" {
		return
	}
	var pinger status.Pinger
	if p, ok := r.writer.(sink.Pinger); ok {
		pinger = p
	}
	srv := status.NewServer(r.tracker, pinger, version, logger)
	go func() {
		if err := srv.ListenAndServe(ctx, cfg.Status.Addr); err != nil {
			logger.Error("status server error", zap.Error(err))
		}
	}()
}

func (r *runner) run(ctx context.Context, files []model.SourceFile) (*pipeline.Result, error) {
	opts := pipeline.OptionsFromConfig(cfg)
	opts.Tracker = r.tracker

	o, err := pipeline.New(opts, r.store, r.writer, logger)
	if err != nil {
		return nil, err
	}

	res, runErr := o.Run(ctx, files)
	if err := notify.Report(context.WithoutCancel(ctx), r.notifier, res, runErr); err != nil {
		logger.Warn("failed to send notification", zap.Error(err))
	}
	return res, runErr
}

func openStore() (checkpoint.Store, error) {
	store, err := checkpoint.Open(cfg.Checkpoint.Backend, cfg.Checkpoint.Location())
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint store: %w", err)
	}
	return store, nil
}

// selectFiles discovers captures, narrowed to one file when only is set.
func selectFiles(only string) ([]model.SourceFile, error) {
	files, err := pipeline.Discover(cfg.Input.Directory, cfg.Input.Pattern, logger)
	if err != nil {
		return nil, err
	}
	if only == "" {
		return files, nil
	}

	name := filepath.Base(only)
	for _, f := range files {
		if f.ID == name {
			return []model.SourceFile{f}, nil
		}
	}
	return nil, fmt.Errorf("file %s not found in %s (pattern %s)", name, cfg.Input.Directory, cfg.Input.Pattern)
}

func printResult(res *pipeline.Result) {
	fmt.Printf("\nRun %s finished in %s\n", res.RunID, res.Duration.Round(time.Millisecond))
	for _, f := range res.Files {
		line := fmt.Sprintf("  %-40s %-12s batches=%-6d records=%-9d offset=%d", f.ID, f.State, f.Batches, f.Records, f.Offset)
		if f.Skipped {
			line += " (already complete)"
		}
		if f.Err != nil {
			line += "\n      error: " + f.Err.Error()
		}
		fmt.Println(line)
	}
	fmt.Printf("Files: %d  Complete: %d  Failed: %d  Interrupted: %d  Pending: %d  Records: %d\n",
		res.Total, res.Complete, res.Failed, res.Interrupted, res.Pending, res.Records)
}

// resultError turns an unsuccessful run into the command's error, which
// makes the process exit non-zero.
func resultError(res *pipeline.Result, runErr error) error {
	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("interrupted: %d of %d files complete", res.Complete, res.Total)
	}
	if runErr != nil {
		return runErr
	}
	if !res.OK() {
		return fmt.Errorf("%d of %d files did not complete", res.Total-res.Complete, res.Total)
	}
	return nil
}
