package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dgnsrekt/tbbo-ingest/internal/batch"
	"github.com/dgnsrekt/tbbo-ingest/internal/config"
)

// Querier is the subset of pgxpool.Pool used for administration.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Admin manages and inspects the sink table over the query protocol.
type Admin struct {
	db     Querier
	table  string
	flavor string
	dedup  bool
}

func NewAdmin(db Querier, cfg config.SinkConfig) *Admin {
	return &Admin{db: db, table: cfg.Table, flavor: cfg.Flavor, dedup: cfg.Dedup}
}

func (a *Admin) Table() string { return a.table }

func (a *Admin) Ping(ctx context.Context) error {
	return a.db.Ping(ctx)
}

// CreateTable creates the sink table if it does not exist.
func (a *Admin) CreateTable(ctx context.Context) error {
	for _, stmt := range CreateTableSQL(a.table, a.flavor, a.dedup) {
		if _, err := a.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating table %s: %w", a.table, err)
		}
	}
	return nil
}

func (a *Admin) DropTable(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, "DROP TABLE IF EXISTS "+a.table); err != nil {
		return fmt.Errorf("dropping table %s: %w", a.table, err)
	}
	return nil
}

// Count returns the number of rows in the sink table.
func (a *Admin) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.QueryRow(ctx, "SELECT count(*) FROM "+a.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return n, nil
}

// Sample returns up to limit rows with their column names.
func (a *Admin) Sample(ctx context.Context, limit int) ([]string, [][]any, error) {
	rows, err := a.db.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", a.table, limit))
	if err != nil {
		return nil, nil, fmt.Errorf("sampling rows: %w", err)
	}
	defer rows.Close()

	var cols []string
	for _, fd := range rows.FieldDescriptions() {
		cols = append(cols, fd.Name)
	}

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("reading row: %w", err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("sampling rows: %w", err)
	}
	return cols, out, nil
}

// CreateTableSQL renders the DDL for the sink schema. QuestDB tables are
// partitioned by day on ts_event; with dedup the (ts_event, symbol) pair is
// an upsert key so replayed batches do not duplicate rows.
func CreateTableSQL(table, flavor string, dedup bool) []string {
	var cols []string
	for _, c := range batch.Columns {
		typ := c.Postgres
		if flavor == config.FlavorQuestDB {
			typ = c.QuestDB
		}
		cols = append(cols, fmt.Sprintf("  %s %s", c.Name, typ))
	}
	body := strings.Join(cols, ",\n")

	if flavor == config.FlavorQuestDB {
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n) TIMESTAMP(%s) PARTITION BY DAY WAL",
			table, body, batch.TimestampColumn)
		if dedup {
			stmt += fmt.Sprintf("\nDEDUP UPSERT KEYS(%s, symbol)", batch.TimestampColumn)
		}
		return []string{stmt}
	}

	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", table, body),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_symbol_ts_idx ON %s (symbol, %s)", table, table, batch.TimestampColumn),
	}
}
