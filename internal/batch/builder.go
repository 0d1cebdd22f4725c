package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

const (
	DefaultChunkSize = 1000
	MinChunkSize     = 25
	MaxChunkSize     = 100_000

	DefaultMaxBytes = 8 << 20
	MinMaxBytes     = 64 << 10
)

// In-memory size of a quote excluding its symbol bytes.
var quoteFootprint = int(reflect.TypeOf(model.Quote{}).Size())

// Source yields quotes together with the decoded offset following each one.
// *dbn.Decoder satisfies it.
type Source interface {
	Next() (model.Quote, uint64, error)
	Offset() uint64
}

// EmitFunc receives each closed batch. Ownership of the batch passes to the
// callee. A non-nil error stops the builder.
type EmitFunc func(ctx context.Context, b *model.Batch) error

// Builder groups quotes into batches bounded by record count and estimated
// memory size.
type Builder struct {
	ChunkSize int
	MaxBytes  int
}

// New returns a Builder after checking the bounds.
func New(chunkSize, maxBytes int) (*Builder, error) {
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("chunk size %d out of range [%d, %d]", chunkSize, MinChunkSize, MaxChunkSize)
	}
	if maxBytes < MinMaxBytes {
		return nil, fmt.Errorf("max batch bytes %d below minimum %d", maxBytes, MinMaxBytes)
	}
	return &Builder{ChunkSize: chunkSize, MaxBytes: maxBytes}, nil
}

// EstimateSize approximates the memory held by q inside a batch.
func EstimateSize(q model.Quote) int {
	return quoteFootprint + len(q.Symbol)
}

// Run drains src into batches for fileID and passes each one to emit.
//
// A batch closes when it holds ChunkSize quotes, when the next quote would
// push it past MaxBytes, or when src ends. The final partial batch is always
// emitted. If records were consumed after the last emitted batch without
// producing quotes, an empty batch covering them is emitted so the last
// EndOffset equals the decoded length.
//
// Cancellation is checked between batches only. A decode error discards the
// open batch and is returned as-is. Run returns the number of batches emitted.
func (b *Builder) Run(ctx context.Context, fileID string, src Source, emit EmitFunc) (int, error) {
	emitted := 0
	start := src.Offset()
	cur := b.newBatch(fileID, 1, start)
	prevEnd := start

	flush := func(end uint64) error {
		cur.EndOffset = end
		if err := emit(ctx, cur.Batch); err != nil {
			return err
		}
		emitted++
		prevEnd = end
		cur = b.newBatch(fileID, emitted+1, end)
		return nil
	}

	for {
		if cur.Len() == 0 {
			if err := ctx.Err(); err != nil {
				return emitted, err
			}
		}

		q, off, err := src.Next()
		if errors.Is(err, io.EOF) {
			end := src.Offset()
			if cur.Len() > 0 || end > prevEnd {
				if err := flush(end); err != nil {
					return emitted, err
				}
			}
			return emitted, nil
		}
		if err != nil {
			return emitted, err
		}

		size := EstimateSize(q)
		if cur.Len() > 0 && cur.Bytes+size > b.MaxBytes {
			if err := flush(cur.lastOffset); err != nil {
				return emitted, err
			}
		}

		cur.Quotes = append(cur.Quotes, q)
		cur.Bytes += size
		cur.LastTsEvent = q.TsEvent
		cur.lastOffset = off

		if cur.Len() >= b.ChunkSize {
			if err := flush(off); err != nil {
				return emitted, err
			}
		}
	}
}

// pending is a batch under construction.
type pending struct {
	*model.Batch
	lastOffset uint64
}

func (b *Builder) newBatch(fileID string, seq int, start uint64) *pending {
	capacity := b.ChunkSize
	if n := b.MaxBytes/quoteFootprint + 1; n < capacity {
		capacity = n
	}
	return &pending{
		Batch: &model.Batch{
			FileID:      fileID,
			Seq:         seq,
			StartOffset: start,
			Quotes:      make([]model.Quote, 0, capacity),
		},
		lastOffset: start,
	}
}
