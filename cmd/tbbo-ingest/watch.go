package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/checkpoint"
	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

func watchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the input directory and ingest new captures",
		Long: `Run continuously, ingesting capture files as they appear.

Each poll ingests files that have no checkpoint or are in progress.
Failed files are left alone until their checkpoint is reset with
reset-checkpoint. Stops cleanly on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("interval") {
				interval = cfg.Watch.Interval()
			}

			r, err := newRunner(ctx, false)
			if err != nil {
				return err
			}
			defer r.Close()
			r.serveStatus(ctx)

			logger.Info("watch started",
				zap.String("directory", cfg.Input.Directory),
				zap.Duration("interval", interval))

			poll(ctx, r)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					logger.Info("context cancelled, shutting down")
					return nil
				case <-ticker.C:
					poll(ctx, r)
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "poll interval (overrides watch.interval_sec)")
	return cmd
}

// poll runs one ingest pass over the files that still need work.
func poll(ctx context.Context, r *runner) {
	files, err := selectFiles("")
	if err != nil {
		logger.Error("discovery failed", zap.Error(err))
		return
	}

	todo, err := outstanding(ctx, r.store, files)
	if err != nil {
		logger.Error("reading checkpoints", zap.Error(err))
		return
	}
	if len(todo) == 0 {
		logger.Debug("nothing to ingest", zap.Int("files", len(files)))
		return
	}

	res, err := r.run(ctx, todo)
	if err != nil && res == nil {
		logger.Error("ingest run failed", zap.Error(err))
		return
	}
	if !res.OK() {
		logger.Warn("ingest run incomplete", zap.Strings("errors", res.Errors()))
	}
}

// outstanding drops files that are complete or failed.
func outstanding(ctx context.Context, store checkpoint.Store, files []model.SourceFile) ([]model.SourceFile, error) {
	var out []model.SourceFile
	for _, f := range files {
		cp, err := store.Load(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		if cp != nil && (cp.Complete() || cp.State == model.StateFailed) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
