package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	qdb "github.com/questdb/go-questdb-client/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/tbbo-ingest/internal/batch"
	"github.com/dgnsrekt/tbbo-ingest/internal/config"
	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// ILPWriter sends each batch to QuestDB's HTTP line protocol endpoint as a
// single flush. QuestDB commits an HTTP ILP request as one transaction.
// The client's own retries are disabled; RetryWriter owns backoff.
type ILPWriter struct {
	conf       string
	pingURL    string
	table      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewILPWriter(cfg config.SinkConfig, logger *zap.Logger) *ILPWriter {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &ILPWriter{
		conf:    senderConf(cfg),
		pingURL: fmt.Sprintf("http://%s:%d/ping", cfg.Host, cfg.ILPPort),
		table:   cfg.Table,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		limiter: limiter,
		logger:  logger,
	}
}

// senderConf builds the client configuration string. Values containing ';'
// are escaped by doubling.
func senderConf(cfg config.SinkConfig) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "http::addr=%s:%d;", cfg.Host, cfg.ILPPort)
	if cfg.User != "" {
		fmt.Fprintf(&sb, "username=%s;password=%s;", confValue(cfg.User), confValue(cfg.Password))
	}
	sb.WriteString("auto_flush=off;retry_timeout=0;")
	if t := cfg.Timeout(); t > 0 {
		fmt.Fprintf(&sb, "request_timeout=%d;", t.Milliseconds())
	}
	return sb.String()
}

func confValue(s string) string { return strings.ReplaceAll(s, ";", ";;") }

// Write sends the batch. A fresh sender per batch guarantees that a failed
// flush leaves no buffered rows behind for the next attempt.
func (w *ILPWriter) Write(ctx context.Context, b *model.Batch) error {
	if b.Len() == 0 {
		return nil
	}

	// Wait for rate limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return transient("ilp", fmt.Errorf("rate limiter: %w", err))
	}

	sender, err := qdb.LineSenderFromConf(ctx, w.conf)
	if err != nil {
		return rejected("ilp", fmt.Errorf("creating sender: %w", err))
	}
	defer func() {
		if cerr := sender.Close(context.WithoutCancel(ctx)); cerr != nil {
			w.logger.Debug("closing ilp sender", zap.Error(cerr))
		}
	}()

	for _, q := range b.Quotes {
		if err := appendRow(ctx, sender, w.table, batch.ToRow(q)); err != nil {
			return rejected("ilp", fmt.Errorf("row seq %d: %w", q.Sequence, err))
		}
	}

	start := time.Now()
	if err := sender.Flush(ctx); err != nil {
		return classifyFlush(err)
	}

	w.logger.Debug("ilp batch written",
		zap.String("file", b.FileID),
		zap.Int("seq", b.Seq),
		zap.Int("rows", b.Len()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// appendRow buffers one row as
// table,symbol=..,action=..,side=.. field=value,... ts_event
func appendRow(ctx context.Context, s qdb.LineSender, table string, r batch.Row) error {
	s.Table(table).
		Symbol("symbol", r.Symbol).
		Symbol("action", r.Action).
		Symbol("side", r.Side)

	if !r.TsRecv.IsZero() {
		s.TimestampColumn("ts_recv", r.TsRecv)
	}
	s.Int64Column("instrument_id", r.InstrumentID).
		Int64Column("publisher_id", int64(r.PublisherID))
	priceColumn(s, "bid_px", r.BidPx)
	priceColumn(s, "ask_px", r.AskPx)
	s.Int64Column("bid_sz", r.BidSz).
		Int64Column("ask_sz", r.AskSz).
		Int64Column("bid_ct", r.BidCt).
		Int64Column("ask_ct", r.AskCt)
	priceColumn(s, "price", r.Price)
	s.Int64Column("size", r.Size).
		Int64Column("flags", int64(r.Flags)).
		Int64Column("sequence", r.Sequence).
		BoolColumn("crossed", r.Crossed)

	return s.At(ctx, r.TsEvent)
}

// Absent prices are omitted and land as NULL.
func priceColumn(s qdb.LineSender, name string, v decimal.NullDecimal) {
	if v.Valid {
		s.Float64Column(name, v.Decimal.InexactFloat64())
	}
}

func classifyFlush(err error) error {
	var httpErr *qdb.HttpError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.HttpStatus(), httpErr.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Anything else failed before a response arrived.
	return transient("ilp", err)
}

func classifyStatus(status int, msg string) error {
	if status >= 200 && status < 300 {
		return nil
	}

	err := &Error{Op: "ilp", Status: status, Err: errors.New(strings.TrimSpace(msg))}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		err.Kind = KindTransient
	default:
		err.Kind = KindRejected
	}
	return err
}

// Ping checks that the HTTP endpoint answers. The line sender has no health
// check of its own.
func (w *ILPWriter) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.pingURL, nil)
	if err != nil {
		return err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return transient("ping", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ping: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (w *ILPWriter) Close() error {
	w.httpClient.CloseIdleConnections()
	return nil
}
