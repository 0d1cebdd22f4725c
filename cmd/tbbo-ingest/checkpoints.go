package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tbbo-ingest/internal/checkpoint"
)

func listFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-files",
		Short: "List capture files and their ingest state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			files, err := selectFiles("")
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tDATE\tSIZE\tSTATE\tOFFSET\tRECORDS")
			for _, f := range files {
				cp, err := store.Load(ctx, f.ID)
				if err != nil {
					return err
				}
				date := "-"
				if !f.Date.IsZero() {
					date = f.Date.Format("2006-01-02")
				}
				state, offset, records := string(f.State), uint64(0), int64(0)
				if cp != nil {
					state, offset, records = string(cp.State), cp.Offset, cp.Records
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\n", f.ID, date, f.Size, state, offset, records)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d files in %s\n", len(files), cfg.Input.Directory)
			return nil
		},
	}
}

func checkpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints",
		Short: "Show stored checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			cps, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tSTATE\tOFFSET\tBATCHES\tRECORDS\tRUN\tUPDATED\tERROR")
			for _, cp := range cps {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
					cp.FileID, cp.State, cp.Offset, cp.Batches, cp.Records, cp.RunID,
					cp.UpdatedAt.Format("2006-01-02 15:04:05"), cp.Error)
			}
			return tw.Flush()
		},
	}
}

func resetCheckpointCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reset-checkpoint [FILE]",
		Short: "Forget progress so a file is ingested again from the start",
		Long: `Delete the checkpoint for FILE, or for every file with --all.

Rows already written to the sink are not removed; re-ingesting a file
appends them again unless the table deduplicates.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("give either FILE or --all")
			}
			if !all && len(args) != 1 {
				return errors.New("requires FILE or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ids := args
			if all {
				cps, err := store.List(ctx)
				if err != nil {
					return err
				}
				for _, cp := range cps {
					ids = append(ids, cp.FileID)
				}
			}

			for _, id := range ids {
				if err := store.Reset(ctx, id); err != nil {
					if errors.Is(err, checkpoint.ErrNotFound) {
						return fmt.Errorf("no checkpoint for %s", id)
					}
					return err
				}
				fmt.Printf("Reset %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "reset every checkpoint")
	return cmd
}
