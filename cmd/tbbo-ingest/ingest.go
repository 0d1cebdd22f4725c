package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func ingestCmd() *cobra.Command {
	var (
		file      string
		chunkSize int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:     "ingest",
		Aliases: []string{"process-all"},
		Short:   "Ingest every capture file in the input directory",
		Long: `Ingest TBBO capture files from the input directory into the sink.

Files are processed one at a time in name order. Progress is checkpointed
after every committed batch, so an interrupted run resumes where it left
off. Files already marked complete are skipped.

The command exits 0 only when every selected file is complete.

Examples:
  # Ingest everything in input.directory
  tbbo-ingest ingest

  # One file with smaller batches
  tbbo-ingest ingest --file xnas-itch-20240102.tbbo.dbn.zst --chunk-size 500

  # Decode and batch without writing to the sink
  tbbo-ingest ingest --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if cmd.Flags().Changed("chunk-size") {
				cfg.Batch.ChunkSize = chunkSize
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			files, err := selectFiles(file)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				logger.Info("no capture files found",
					zap.String("directory", cfg.Input.Directory),
					zap.String("pattern", cfg.Input.Pattern))
				return nil
			}

			r, err := newRunner(ctx, dryRun)
			if err != nil {
				return err
			}
			defer r.Close()
			r.serveStatus(ctx)

			res, runErr := r.run(ctx, files)
			if res == nil {
				return runErr
			}
			printResult(res)
			if dryRun {
				fmt.Println("Dry run: nothing was written to the sink and no checkpoints were saved.")
			}
			return resultError(res, runErr)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "ingest only this file (name within the input directory)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "records per batch (overrides batch.chunk_size)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "decode and batch without writing to the sink")

	return cmd
}
