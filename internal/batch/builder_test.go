package batch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/dgnsrekt/tbbo-ingest/internal/dbn"
	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// sliceSource replays quotes with fixed 80-byte spacing. gaps adds skipped
// bytes before the quote at that index; tail adds skipped bytes after the last.
type sliceSource struct {
	quotes []model.Quote
	gaps   map[int]uint64
	tail   uint64
	failAt int // 1-based, 0 disables
	offset uint64
	pos    int
}

var errDecode = errors.New("decode failed")

func (s *sliceSource) Next() (model.Quote, uint64, error) {
	if s.failAt > 0 && s.pos+1 == s.failAt {
		return model.Quote{}, s.offset, errDecode
	}
	if s.pos >= len(s.quotes) {
		s.offset += s.tail
		s.tail = 0
		return model.Quote{}, s.offset, io.EOF
	}
	s.offset += s.gaps[s.pos] + 80
	q := s.quotes[s.pos]
	s.pos++
	return q, s.offset, nil
}

func (s *sliceSource) Offset() uint64 { return s.offset }

func quotes(n int) []model.Quote {
	out := make([]model.Quote, n)
	for i := range out {
		out[i] = model.Quote{TsEvent: uint64(i + 1), Symbol: "AAPL", Sequence: uint32(i)}
	}
	return out
}

func collect(t *testing.T, b *Builder, src Source) ([]*model.Batch, error) {
	t.Helper()
	var got []*model.Batch
	_, err := b.Run(context.Background(), "f", src, func(_ context.Context, batch *model.Batch) error {
		got = append(got, batch)
		return nil
	})
	return got, err
}

func TestNewValidatesBounds(t *testing.T) {
	tests := []struct {
		name      string
		chunk     int
		maxBytes  int
		wantError bool
	}{
		{"defaults", DefaultChunkSize, DefaultMaxBytes, false},
		{"minimum chunk", MinChunkSize, MinMaxBytes, false},
		{"chunk too small", MinChunkSize - 1, DefaultMaxBytes, true},
		{"chunk too large", MaxChunkSize + 1, DefaultMaxBytes, true},
		{"bytes too small", DefaultChunkSize, MinMaxBytes - 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.chunk, tt.maxBytes)
			if (err != nil) != tt.wantError {
				t.Errorf("New(%d, %d) error = %v, wantError %v", tt.chunk, tt.maxBytes, err, tt.wantError)
			}
		})
	}
}

func TestBuilderCountBound(t *testing.T) {
	b, _ := New(25, DefaultMaxBytes)
	src := &sliceSource{quotes: quotes(110)}

	got, err := collect(t, b, src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d batches, want 5", len(got))
	}

	var prevEnd uint64
	total := 0
	for i, batch := range got {
		if batch.Seq != i+1 {
			t.Errorf("batch %d has Seq %d", i, batch.Seq)
		}
		if batch.Len() < 1 || batch.Len() > 25 {
			t.Errorf("batch %d has %d quotes", i, batch.Len())
		}
		if batch.StartOffset != prevEnd {
			t.Errorf("batch %d starts at %d, previous ended at %d", i, batch.StartOffset, prevEnd)
		}
		if batch.EndOffset != batch.StartOffset+uint64(batch.Len())*80 {
			t.Errorf("batch %d end offset %d inconsistent", i, batch.EndOffset)
		}
		prevEnd = batch.EndOffset
		total += batch.Len()
	}
	if total != 110 {
		t.Errorf("total quotes %d, want 110", total)
	}
	if got[4].Len() != 10 {
		t.Errorf("final partial batch has %d quotes, want 10", got[4].Len())
	}
	if got[4].LastTsEvent != 110 {
		t.Errorf("LastTsEvent = %d, want 110", got[4].LastTsEvent)
	}
}

func TestBuilderByteBound(t *testing.T) {
	b := &Builder{ChunkSize: 1000, MaxBytes: 10 * EstimateSize(model.Quote{Symbol: "AAPL"})}
	src := &sliceSource{quotes: quotes(35)}

	got, err := collect(t, b, src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d batches, want 4", len(got))
	}
	for i, batch := range got {
		if batch.Bytes > b.MaxBytes {
			t.Errorf("batch %d holds %d bytes, ceiling %d", i, batch.Bytes, b.MaxBytes)
		}
	}
	if got[0].Len() != 10 || got[3].Len() != 5 {
		t.Errorf("unexpected batch sizes %d..%d", got[0].Len(), got[3].Len())
	}
	if got[1].StartOffset != got[0].EndOffset {
		t.Error("byte-bounded batches must be contiguous")
	}
}

func TestBuilderExactMultipleHasNoEmptyTail(t *testing.T) {
	b, _ := New(25, DefaultMaxBytes)
	got, err := collect(t, b, &sliceSource{quotes: quotes(100)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("got %d batches, want 4", len(got))
	}
}

func TestBuilderTrailingRecordsEmitEmptyBatch(t *testing.T) {
	b, _ := New(25, DefaultMaxBytes)
	src := &sliceSource{quotes: quotes(50), tail: 48}

	got, err := collect(t, b, src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d batches, want 3", len(got))
	}
	last := got[2]
	if last.Len() != 0 {
		t.Errorf("tail batch has %d quotes, want 0", last.Len())
	}
	if last.StartOffset != 50*80 || last.EndOffset != 50*80+48 {
		t.Errorf("tail batch covers [%d, %d)", last.StartOffset, last.EndOffset)
	}
}

func TestBuilderEmptySource(t *testing.T) {
	b, _ := New(25, DefaultMaxBytes)
	got, err := collect(t, b, &sliceSource{offset: 300})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("empty source produced %d batches", len(got))
	}
}

func TestBuilderSkippedRecordsStayInsideBatch(t *testing.T) {
	b, _ := New(25, DefaultMaxBytes)
	src := &sliceSource{quotes: quotes(30), gaps: map[int]uint64{25: 16, 26: 16}}

	got, err := collect(t, b, src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d batches, want 2", len(got))
	}
	if got[1].StartOffset != 25*80 {
		t.Errorf("second batch starts at %d, want %d", got[1].StartOffset, 25*80)
	}
	if got[1].EndOffset != 30*80+32 {
		t.Errorf("second batch ends at %d, want %d", got[1].EndOffset, 30*80+32)
	}
}

func TestBuilderDecodeErrorDiscardsOpenBatch(t *testing.T) {
	b, _ := New(25, DefaultMaxBytes)
	src := &sliceSource{quotes: quotes(100), failAt: 61}

	got, err := collect(t, b, src)
	if !errors.Is(err, errDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d batches before the error, want 2", len(got))
	}
	if got[1].EndOffset != 50*80 {
		t.Errorf("last emitted batch ends at %d, want %d", got[1].EndOffset, 50*80)
	}
}

func TestBuilderEmitErrorStops(t *testing.T) {
	b, _ := New(25, DefaultMaxBytes)
	sentinel := errors.New("sink closed")

	calls := 0
	n, err := b.Run(context.Background(), "f", &sliceSource{quotes: quotes(100)}, func(context.Context, *model.Batch) error {
		calls++
		if calls == 2 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected emit error, got %v", err)
	}
	if n != 1 || calls != 2 {
		t.Errorf("emitted %d after %d calls, want 1 after 2", n, calls)
	}
}

func TestBuilderStopsAtBatchBoundaryOnCancel(t *testing.T) {
	b, _ := New(25, DefaultMaxBytes)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &sliceSource{quotes: quotes(100)}
	var got []*model.Batch
	_, err := b.Run(ctx, "f", src, func(_ context.Context, batch *model.Batch) error {
		got = append(got, batch)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(got) != 2 {
		t.Errorf("emitted %d batches, want 2", len(got))
	}
	if src.pos != 50 {
		t.Errorf("source consumed %d quotes past the boundary", src.pos-50)
	}
}

func TestBuilderOverCapture(t *testing.T) {
	var buf bytes.Buffer
	res, err := dbn.WriteSynthetic(&buf, dbn.SynthOptions{Records: 10_000, OtherEvery: 97})
	if err != nil {
		t.Fatalf("WriteSynthetic failed: %v", err)
	}

	dec, err := dbn.Open(&buf, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dec.Close()

	b, _ := New(DefaultChunkSize, DefaultMaxBytes)
	got, err := collect(t, b, dec)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d batches, want 10", len(got))
	}
	for i, batch := range got {
		if batch.Len() != 1000 {
			t.Errorf("batch %d has %d quotes", i, batch.Len())
		}
	}
	if end := got[9].EndOffset; end != res.DecodedLength {
		t.Errorf("final offset %d, want decoded length %d", end, res.DecodedLength)
	}
}
