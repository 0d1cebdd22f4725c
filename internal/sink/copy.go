package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/batch"
	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// copyConn is the subset of pgxpool.Pool used by CopyWriter.
type copyConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CopyWriter loads each batch with COPY inside one transaction.
type CopyWriter struct {
	db      copyConn
	pool    *pgxpool.Pool // closed on Close when owned
	table   pgx.Identifier
	columns []string
	logger  *zap.Logger
}

type CopyOption func(*CopyWriter)

// WithPoolOwnership makes Close close the pool.
func WithPoolOwnership() CopyOption {
	return func(w *CopyWriter) {
		if p, ok := w.db.(*pgxpool.Pool); ok {
			w.pool = p
		}
	}
}

func NewCopyWriter(pool *pgxpool.Pool, table string, logger *zap.Logger, opts ...CopyOption) *CopyWriter {
	w := newCopyWriter(pool, table, logger)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func newCopyWriter(db copyConn, table string, logger *zap.Logger) *CopyWriter {
	return &CopyWriter{
		db:      db,
		table:   pgx.Identifier{table},
		columns: batch.ColumnNames(),
		logger:  logger,
	}
}

func (w *CopyWriter) Write(ctx context.Context, b *model.Batch) error {
	if b.Len() == 0 {
		return nil
	}

	rows := batch.ToRows(b)
	start := time.Now()

	tx, err := w.db.Begin(ctx)
	if err != nil {
		return classifyPg(err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	n, err := tx.CopyFrom(ctx, w.table, w.columns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return copyValues(rows[i]), nil
	}))
	if err != nil {
		return classifyPg(err)
	}
	if n != int64(len(rows)) {
		return transient("copy", fmt.Errorf("copied %d of %d rows", n, len(rows)))
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPg(err)
	}

	w.logger.Debug("copy batch committed",
		zap.String("file", b.FileID),
		zap.Int("seq", b.Seq),
		zap.Int64("rows", n),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Ping checks the database connection.
func (w *CopyWriter) Ping(ctx context.Context) error {
	if p, ok := w.db.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (w *CopyWriter) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}

func copyValues(r batch.Row) []any {
	vals := r.Values()
	for i, v := range vals {
		if d, ok := v.(decimal.Decimal); ok {
			vals[i] = pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
		}
	}
	return vals
}

// classifyPg maps a pgx error onto transient or rejected by SQLSTATE class.
func classifyPg(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		e := &Error{Op: "copy", Code: pgErr.Code, Err: err}
		if transientSQLState(pgErr.Code) {
			e.Kind = KindTransient
		} else {
			e.Kind = KindRejected
		}
		return e
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || IsTransient(err) {
		return transient("copy", err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return transient("copy", err)
	}
	return rejected("copy", err)
}

// transientSQLState covers connection exceptions, transaction rollbacks
// (serialization, deadlock), insufficient resources, operator intervention
// and system errors.
func transientSQLState(code string) bool {
	for _, prefix := range []string{"08", "40", "53", "57P", "58"} {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}
