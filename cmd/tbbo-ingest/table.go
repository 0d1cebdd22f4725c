package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/config"
	"github.com/dgnsrekt/tbbo-ingest/internal/database"
	"github.com/dgnsrekt/tbbo-ingest/internal/sink"
)

// withAdmin connects over the PostgreSQL wire protocol and runs fn.
func withAdmin(ctx context.Context, wait bool, fn func(a *sink.Admin) error) error {
	var (
		pool *pgxpool.Pool
		err  error
	)
	if wait {
		pool, err = database.WaitForSink(ctx, cfg.Sink, 10, 3*time.Second, logger)
	} else {
		pool, err = database.Connect(ctx, cfg.Sink)
	}
	if err != nil {
		return fmt.Errorf("connecting to %s:%d: %w", cfg.Sink.Host, cfg.Sink.PGPort, err)
	}
	defer pool.Close()

	return fn(sink.NewAdmin(pool, cfg.Sink))
}

func createTableCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "create-table",
		Short: "Create the sink table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd.Context(), wait, func(a *sink.Admin) error {
				if err := a.CreateTable(cmd.Context()); err != nil {
					return err
				}
				logger.Info("table ready",
					zap.String("table", a.Table()),
					zap.String("flavor", cfg.Sink.Flavor),
					zap.Bool("dedup", cfg.Sink.Dedup))
				fmt.Printf("Table %s ready\n", a.Table())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "retry until the sink accepts connections")
	return cmd
}

func dropTableCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "drop-table",
		Short: "Drop the sink table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop %s without --yes", cfg.Sink.Table)
			}
			return withAdmin(cmd.Context(), false, func(a *sink.Admin) error {
				if err := a.DropTable(cmd.Context()); err != nil {
					return err
				}
				fmt.Printf("Dropped %s\n", a.Table())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping the table")
	return cmd
}

func testConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the sink is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			err := withAdmin(ctx, false, func(a *sink.Admin) error {
				return a.Ping(ctx)
			})
			if err != nil {
				return err
			}
			fmt.Printf("Query endpoint %s:%d OK\n", cfg.Sink.Host, cfg.Sink.PGPort)

			if cfg.Sink.Protocol == config.ProtocolILP {
				w := sink.NewILPWriter(cfg.Sink, logger)
				defer w.Close()
				if err := w.Ping(ctx); err != nil {
					return fmt.Errorf("ILP endpoint %s:%d: %w", cfg.Sink.Host, cfg.Sink.ILPPort, err)
				}
				fmt.Printf("ILP endpoint %s:%d OK\n", cfg.Sink.Host, cfg.Sink.ILPPort)
			}
			return nil
		},
	}
}

func testDataCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "test-data",
		Short: "Show the row count and latest rows of the sink table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withAdmin(ctx, false, func(a *sink.Admin) error {
				n, err := a.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d rows\n\n", a.Table(), n)
				if n == 0 {
					return nil
				}

				cols, rows, err := a.Sample(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, strings.ToUpper(strings.Join(cols, "\t")))
				for _, row := range rows {
					cells := make([]string, len(row))
					for i, v := range row {
						cells[i] = formatCell(v)
					}
					fmt.Fprintln(tw, strings.Join(cells, "\t"))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of rows to show")
	return cmd
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05.000000000")
	default:
		return fmt.Sprint(x)
	}
}
