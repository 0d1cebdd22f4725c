package batch

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// Column is one sink column with its type in each supported store.
type Column struct {
	Name     string
	QuestDB  string
	Postgres string
}

// Columns lists the sink table in insertion order. It is the only place where
// decoded field names are translated to sink names.
var Columns = []Column{
	{"ts_event", "TIMESTAMP", "TIMESTAMPTZ NOT NULL"},
	{"ts_recv", "TIMESTAMP", "TIMESTAMPTZ"},
	{"symbol", "SYMBOL", "TEXT NOT NULL"},
	{"instrument_id", "LONG", "BIGINT"},
	{"publisher_id", "INT", "INTEGER"},
	{"bid_px", "DOUBLE", "NUMERIC(20,9)"},
	{"ask_px", "DOUBLE", "NUMERIC(20,9)"},
	{"bid_sz", "LONG", "BIGINT"},
	{"ask_sz", "LONG", "BIGINT"},
	{"bid_ct", "LONG", "BIGINT"},
	{"ask_ct", "LONG", "BIGINT"},
	{"price", "DOUBLE", "NUMERIC(20,9)"},
	{"size", "LONG", "BIGINT"},
	{"action", "SYMBOL", "TEXT"},
	{"side", "SYMBOL", "TEXT"},
	{"flags", "INT", "INTEGER"},
	{"sequence", "LONG", "BIGINT"},
	{"crossed", "BOOLEAN", "BOOLEAN"},
}

// TimestampColumn is the designated event-time column.
const TimestampColumn = "ts_event"

// ColumnNames returns the names from Columns in order.
func ColumnNames() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.Name
	}
	return names
}

// Row is a quote expressed in sink terms.
type Row struct {
	TsEvent      time.Time
	TsRecv       time.Time // zero when the capture has no receive time
	Symbol       string
	InstrumentID int64
	PublisherID  int32
	BidPx        decimal.NullDecimal
	AskPx        decimal.NullDecimal
	BidSz        int64
	AskSz        int64
	BidCt        int64
	AskCt        int64
	Price        decimal.NullDecimal
	Size         int64
	Action       string
	Side         string
	Flags        int32
	Sequence     int64
	Crossed      bool
}

// ToRow maps a decoded quote onto the sink schema.
func ToRow(q model.Quote) Row {
	r := Row{
		TsEvent:      nanos(q.TsEvent),
		Symbol:       q.Symbol,
		InstrumentID: int64(q.InstrumentID),
		PublisherID:  int32(q.PublisherID),
		BidPx:        price(q.BidPx),
		AskPx:        price(q.AskPx),
		BidSz:        int64(q.BidSz),
		AskSz:        int64(q.AskSz),
		BidCt:        int64(q.BidCt),
		AskCt:        int64(q.AskCt),
		Price:        price(q.Price),
		Size:         int64(q.Size),
		Action:       string(rune(q.Action)),
		Side:         string(rune(q.Side)),
		Flags:        int32(q.Flags),
		Sequence:     int64(q.Sequence),
		Crossed:      q.Crossed(),
	}
	if q.TsRecv != 0 && q.TsRecv != math.MaxUint64 {
		r.TsRecv = nanos(q.TsRecv)
	}
	return r
}

// ToRows maps every quote in b.
func ToRows(b *model.Batch) []Row {
	rows := make([]Row, len(b.Quotes))
	for i, q := range b.Quotes {
		rows[i] = ToRow(q)
	}
	return rows
}

// Values returns the row in Columns order. Absent values are nil.
func (r Row) Values() []any {
	var recv any
	if !r.TsRecv.IsZero() {
		recv = r.TsRecv
	}
	return []any{
		r.TsEvent,
		recv,
		r.Symbol,
		r.InstrumentID,
		r.PublisherID,
		nullable(r.BidPx),
		nullable(r.AskPx),
		r.BidSz,
		r.AskSz,
		r.BidCt,
		r.AskCt,
		nullable(r.Price),
		r.Size,
		r.Action,
		r.Side,
		r.Flags,
		r.Sequence,
		r.Crossed,
	}
}

func nanos(ns uint64) time.Time {
	return time.Unix(0, int64(ns)).UTC()
}

func price(px int64) decimal.NullDecimal {
	if px == model.UndefPrice {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.New(px, -9))
}

func nullable(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal
}
