package model

import (
	"math"
	"time"
)

// UndefPrice marks an absent price level in fixed-point fields.
const UndefPrice int64 = math.MaxInt64

// PriceScale is the number of fixed-point units per 1.0 of price.
const PriceScale = 1_000_000_000

// Quote is one decoded top-of-book (TBBO) event.
//
// Prices are fixed-point integers in units of 1e-9. Quote is a value type and
// is never mutated after decoding.
type Quote struct {
	TsEvent      uint64 // exchange event time, ns since epoch
	TsRecv       uint64 // capture receive time, ns since epoch
	Symbol       string
	InstrumentID uint32
	PublisherID  uint16

	BidPx int64
	AskPx int64
	BidSz uint32
	AskSz uint32
	BidCt uint32
	AskCt uint32

	// Trade that triggered the quote update.
	Price     int64
	Size      uint32
	Action    byte
	Side      byte
	Flags     uint8
	Sequence  uint32
	TsInDelta int32
}

func (q Quote) HasBid() bool { return q.BidPx != UndefPrice }

func (q Quote) HasAsk() bool { return q.AskPx != UndefPrice }

// Crossed reports a locked or crossed book (bid >= ask). Such quotes are
// valid transient states and are flagged, never rejected.
func (q Quote) Crossed() bool {
	return q.HasBid() && q.HasAsk() && q.BidPx >= q.AskPx
}

// EventTime returns TsEvent as a UTC time.
func (q Quote) EventTime() time.Time {
	return time.Unix(0, int64(q.TsEvent)).UTC()
}
