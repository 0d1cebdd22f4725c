package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/dbn"
	"github.com/dgnsrekt/tbbo-ingest/internal/staging"
)

func generateCmd() *cobra.Command {
	var (
		records    int
		symbols    []string
		date       string
		seed       int64
		otherEvery int
		corruptAt  int
		raw        bool
	)

	cmd := &cobra.Command{
		Use:   "generate [FILE]",
		Short: "Write a synthetic TBBO capture for testing",
		Long: `Write a deterministic synthetic TBBO capture.

Without FILE the capture is written to the input directory as
xnas-itch-YYYYMMDD.tbbo.dbn.zst. The file appears only once complete.

Examples:
  tbbo-ingest generate --records 100000 --date 2024-01-02
  tbbo-ingest generate --corrupt-at 5001 /tmp/broken.tbbo.dbn.zst`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse("2006-01-02", date)
			if err != nil {
				return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
			}

			dir, name := cfg.Input.Directory, fmt.Sprintf("xnas-itch-%s.tbbo.dbn.zst", day.Format("20060102"))
			if len(args) == 1 {
				dir, name = filepath.Dir(args[0]), filepath.Base(args[0])
			}

			opts := dbn.SynthOptions{
				Symbols:    symbols,
				Records:    records,
				Start:      day.Add(14*time.Hour + 30*time.Minute),
				Seed:       seed,
				OtherEvery: otherEvery,
				CorruptAt:  corruptAt,
				Raw:        raw,
			}

			var res *dbn.SynthResult
			path, size, err := staging.NewManager(dir).Write(name, func(w io.Writer) error {
				var err error
				res, err = dbn.WriteSynthetic(w, opts)
				return err
			})
			if err != nil {
				return err
			}

			logger.Info("synthetic capture written",
				zap.String("path", path),
				zap.Int("quotes", len(res.Quotes)),
				zap.Int64("bytes", size),
				zap.Uint64("decoded_length", res.DecodedLength))
			fmt.Printf("Wrote %s: %d quotes (%s), %d bytes on disk, %d decoded\n",
				path, len(res.Quotes), strings.Join(symbols, ","), size, res.DecodedLength)
			return nil
		},
	}

	cmd.Flags().IntVar(&records, "records", 10_000, "number of quotes")
	cmd.Flags().StringSliceVar(&symbols, "symbols", []string{"AAPL"}, "symbols to cycle through")
	cmd.Flags().StringVar(&date, "date", "2024-01-02", "trading date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&otherEvery, "other-every", 0, "interleave a trade record after every N quotes")
	cmd.Flags().IntVar(&corruptAt, "corrupt-at", 0, "corrupt the header of the N-th quote")
	cmd.Flags().BoolVar(&raw, "raw", false, "write uncompressed DBN")

	return cmd
}
