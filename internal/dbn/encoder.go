package dbn

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// Encoder writes a DBN capture. It is used to generate synthetic captures and
// by tests that need byte-exact fixtures.
type Encoder struct {
	zw     *zstd.Encoder
	w      io.Writer
	offset uint64
	buf    [MaxRecordSize]byte
}

// EncoderOption configures an Encoder.
type EncoderOption func(*encoderOptions)

type encoderOptions struct {
	raw   bool
	level zstd.EncoderLevel
}

// WithoutCompression writes an uncompressed .dbn stream.
func WithoutCompression() EncoderOption {
	return func(o *encoderOptions) { o.raw = true }
}

// WithLevel sets the zstd compression level.
func WithLevel(level zstd.EncoderLevel) EncoderOption {
	return func(o *encoderOptions) { o.level = level }
}

// NewEncoder writes the capture prefix and metadata to w.
func NewEncoder(w io.Writer, meta Metadata, opts ...EncoderOption) (*Encoder, error) {
	o := encoderOptions{level: zstd.SpeedDefault}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Encoder{w: w}
	if !o.raw {
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(o.level), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		e.zw = zw
		e.w = zw
	}

	if meta.Version == 0 {
		meta.Version = 2
	}
	body, err := meta.marshal()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	var prefix [prefixSize]byte
	copy(prefix[:3], dbnMagic[:])
	prefix[3] = meta.Version
	binary.LittleEndian.PutUint32(prefix[4:], uint32(len(body)))

	if err := e.WriteRaw(prefix[:]); err != nil {
		return nil, err
	}
	if err := e.WriteRaw(body); err != nil {
		return nil, err
	}
	return e, nil
}

// Offset returns the number of decoded bytes written so far. After a record
// is written it is the boundary following that record.
func (e *Encoder) Offset() uint64 {
	return e.offset
}

// WriteQuote appends a TBBO record.
func (e *Encoder) WriteQuote(q model.Quote) error {
	encodeMBP1(e.buf[:MBP1Size], q)
	return e.WriteRaw(e.buf[:MBP1Size])
}

// WriteRecord appends a record of any kind with the given body. The body
// length plus the header must be a multiple of four.
func (e *Encoder) WriteRecord(h Header, body []byte) error {
	size := HeaderSize + len(body)
	if size%lengthMultiplier != 0 || size > MaxRecordSize {
		return fmt.Errorf("invalid record size %d", size)
	}
	h.Length = uint8(size / lengthMultiplier)
	EncodeHeader(e.buf[:HeaderSize], h)
	copy(e.buf[HeaderSize:size], body)
	return e.WriteRaw(e.buf[:size])
}

// WriteRaw appends bytes to the decoded stream as-is.
func (e *Encoder) WriteRaw(p []byte) error {
	n, err := e.w.Write(p)
	e.offset += uint64(n)
	if err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	return nil
}

// Close flushes the compressed stream. It does not close the underlying
// writer.
func (e *Encoder) Close() error {
	if e.zw != nil {
		return e.zw.Close()
	}
	return nil
}
