package sink

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dgnsrekt/tbbo-ingest/internal/batch"
	"github.com/dgnsrekt/tbbo-ingest/internal/config"
	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

func TestClassifyPg(t *testing.T) {
	tests := []struct {
		code      string
		transient bool
	}{
		{"08006", true},  // connection failure
		{"40001", true},  // serialization failure
		{"40P01", true},  // deadlock
		{"53300", true},  // too many connections
		{"57P01", true},  // admin shutdown
		{"58030", true},  // io error
		{"22003", false}, // numeric out of range
		{"23505", false}, // unique violation
		{"42P01", false}, // undefined table
		{"42703", false}, // undefined column
		{"57014", false}, // query canceled
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := classifyPg(fmt.Errorf("copy: %w", &pgconn.PgError{Code: tt.code, Message: "x"}))
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient = %v, want %v", IsTransient(err), tt.transient)
			}
			var se *Error
			if !errors.As(err, &se) || se.Code != tt.code {
				t.Errorf("expected *Error carrying sqlstate %s, got %v", tt.code, err)
			}
		})
	}
}

func TestClassifyPgNetworkErrors(t *testing.T) {
	if err := classifyPg(io.ErrUnexpectedEOF); !errors.Is(err, ErrSinkTransient) {
		t.Errorf("unexpected EOF should be transient, got %v", err)
	}
	if err := classifyPg(errors.New("cannot encode")); !errors.Is(err, ErrSinkRejected) {
		t.Errorf("unknown local error should be rejected, got %v", err)
	}
}

func TestCopyValues(t *testing.T) {
	row := batch.ToRow(model.Quote{
		TsEvent: 1,
		Symbol:  "AAPL",
		BidPx:   185_120_000_000,
		AskPx:   model.UndefPrice,
		Price:   185_125_000_000,
		Action:  'T',
		Side:    'A',
	})
	vals := copyValues(row)

	if len(vals) != len(batch.Columns) {
		t.Fatalf("got %d values for %d columns", len(vals), len(batch.Columns))
	}

	bid, ok := vals[5].(pgtype.Numeric)
	if !ok || !bid.Valid {
		t.Fatalf("bid_px should be a valid pgtype.Numeric, got %T %v", vals[5], vals[5])
	}
	if bid.Int.Int64() != 185_120_000_000 || bid.Exp != -9 {
		t.Errorf("bid_px numeric = %v e%d", bid.Int, bid.Exp)
	}
	if vals[6] != nil {
		t.Errorf("absent ask_px should be nil, got %v", vals[6])
	}
}

func TestCreateTableSQL(t *testing.T) {
	stmts := CreateTableSQL("tbbo", config.FlavorQuestDB, true)
	if len(stmts) != 1 {
		t.Fatalf("expected one statement for questdb, got %d", len(stmts))
	}
	ddl := stmts[0]
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS tbbo (",
		"ts_event TIMESTAMP",
		"symbol SYMBOL",
		"bid_px DOUBLE",
		"TIMESTAMP(ts_event) PARTITION BY DAY WAL",
		"DEDUP UPSERT KEYS(ts_event, symbol)",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("questdb DDL missing %q:\n%s", want, ddl)
		}
	}

	if strings.Contains(CreateTableSQL("tbbo", config.FlavorQuestDB, false)[0], "DEDUP") {
		t.Error("dedup clause should be optional")
	}

	pg := CreateTableSQL("quotes", config.FlavorPostgres, false)
	if len(pg) != 2 {
		t.Fatalf("expected table and index statements for postgres, got %d", len(pg))
	}
	if !strings.Contains(pg[0], "bid_px NUMERIC(20,9)") || !strings.Contains(pg[0], "ts_event TIMESTAMPTZ NOT NULL") {
		t.Errorf("unexpected postgres DDL:\n%s", pg[0])
	}
	if !strings.Contains(pg[1], "ON quotes (symbol, ts_event)") {
		t.Errorf("unexpected index DDL: %s", pg[1])
	}
}
