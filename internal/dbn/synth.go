package dbn

import (
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"time"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// SynthOptions describes a synthetic TBBO capture.
type SynthOptions struct {
	Dataset  string
	Symbols  []string
	Records  int
	Start    time.Time
	Interval time.Duration
	Seed     int64

	// OtherEvery interleaves a trade (MBP-0) record after every n quotes.
	OtherEvery int
	// CorruptAt replaces the header of the n-th quote (1-based) with a zero
	// length, producing an unrecoverable frame.
	CorruptAt int
	// MalformedAt writes the n-th quote (1-based) with an invalid side.
	MalformedAt int
	Raw         bool
}

// SynthResult reports what was written.
type SynthResult struct {
	Quotes        []model.Quote
	QuoteOffsets  []uint64 // boundary after each quote in Quotes
	Boundaries    []uint64 // every record boundary, first record start included
	DecodedLength uint64
}

// WriteSynthetic writes a deterministic capture of random-walk quotes to w.
func WriteSynthetic(w io.Writer, opts SynthOptions) (*SynthResult, error) {
	if len(opts.Symbols) == 0 {
		opts.Symbols = []string{"AAPL"}
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Millisecond
	}
	if opts.Start.IsZero() {
		opts.Start = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	}
	if opts.Dataset == "" {
		opts.Dataset = "XNAS.ITCH"
	}

	meta := Metadata{
		Version:       2,
		Dataset:       opts.Dataset,
		Schema:        SchemaTBBO,
		Start:         uint64(opts.Start.UnixNano()),
		End:           uint64(opts.Start.Add(time.Duration(opts.Records) * opts.Interval).UnixNano()),
		STypeIn:       STypeRawSymbol,
		STypeOut:      STypeInstrumentID,
		SymbolCstrLen: 71,
		Symbols:       opts.Symbols,
	}
	date := uint32(opts.Start.Year()*10000 + int(opts.Start.Month())*100 + opts.Start.Day())
	for i, s := range opts.Symbols {
		meta.Mappings = append(meta.Mappings, SymbolMapping{
			RawSymbol: s,
			Intervals: []MappingInterval{{StartDate: date, EndDate: date + 1, Symbol: strconv.Itoa(i + 1)}},
		})
	}

	var encOpts []EncoderOption
	if opts.Raw {
		encOpts = append(encOpts, WithoutCompression())
	}
	enc, err := NewEncoder(w, meta, encOpts...)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	res := &SynthResult{Boundaries: []uint64{enc.Offset()}}
	mid := make([]int64, len(opts.Symbols))
	for i := range mid {
		mid[i] = int64(100+rng.Intn(400)) * model.PriceScale
	}

	for i := 1; i <= opts.Records; i++ {
		idx := rng.Intn(len(opts.Symbols))
		mid[idx] += int64(rng.Intn(21)-10) * model.PriceScale / 100
		spread := int64(1+rng.Intn(5)) * model.PriceScale / 100
		ts := uint64(opts.Start.Add(time.Duration(i) * opts.Interval).UnixNano())

		q := model.Quote{
			TsEvent:      ts,
			TsRecv:       ts + 1500,
			Symbol:       opts.Symbols[idx],
			InstrumentID: uint32(idx + 1),
			PublisherID:  2,
			BidPx:        mid[idx] - spread/2,
			AskPx:        mid[idx] + spread/2,
			BidSz:        uint32(1 + rng.Intn(500)),
			AskSz:        uint32(1 + rng.Intn(500)),
			BidCt:        uint32(1 + rng.Intn(10)),
			AskCt:        uint32(1 + rng.Intn(10)),
			Price:        mid[idx],
			Size:         uint32(1 + rng.Intn(100)),
			Action:       'T',
			Side:         "ABN"[rng.Intn(3)],
			Sequence:     uint32(i),
			TsInDelta:    int32(rng.Intn(20000)),
		}

		switch i {
		case opts.CorruptAt:
			var hdr [HeaderSize]byte
			EncodeHeader(hdr[:], Header{Length: 0, RType: RTypeMBP1, TsEvent: ts})
			if err := enc.WriteRaw(hdr[:]); err != nil {
				return nil, err
			}
			continue
		case opts.MalformedAt:
			q.Side = 'X'
			if err := enc.WriteQuote(q); err != nil {
				return nil, err
			}
			res.Boundaries = append(res.Boundaries, enc.Offset())
			continue
		}

		if err := enc.WriteQuote(q); err != nil {
			return nil, err
		}
		res.Quotes = append(res.Quotes, q)
		res.QuoteOffsets = append(res.QuoteOffsets, enc.Offset())
		res.Boundaries = append(res.Boundaries, enc.Offset())

		if opts.OtherEvery > 0 && i%opts.OtherEvery == 0 {
			if err := writeTrade(enc, q); err != nil {
				return nil, err
			}
			res.Boundaries = append(res.Boundaries, enc.Offset())
		}
	}

	res.DecodedLength = enc.Offset()
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close encoder: %w", err)
	}
	return res, nil
}

// writeTrade appends an MBP-0 trade record built from q.
func writeTrade(enc *Encoder, q model.Quote) error {
	body := make([]byte, 48-HeaderSize)
	copy(body, []byte{byte(q.Price), byte(q.Price >> 8)})
	return enc.WriteRecord(Header{
		RType:        RTypeMBP0,
		PublisherID:  q.PublisherID,
		InstrumentID: q.InstrumentID,
		TsEvent:      q.TsEvent,
	}, body)
}
