package dbn

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

const readBufferSize = 256 << 10

// MaxWindowSize bounds the zstd window a capture may declare. Frames asking
// for more fail as corrupt instead of allocating the window.
const MaxWindowSize = 32 << 20

// Stats counts what the decoder has seen so far.
type Stats struct {
	Records    int64           // TBBO quotes returned
	Malformed  int64           // TBBO records skipped by validation
	Skipped    map[uint8]int64 // other record kinds, by rtype
	OutOfOrder int64           // quotes whose ts_event went backwards
	Crossed    int64
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithSkipHandler registers a callback for records dropped by structural
// validation.
func WithSkipHandler(fn func(*RecordSkipped)) Option {
	return func(d *Decoder) { d.onSkip = fn }
}

// Decoder streams TBBO quotes out of a DBN capture, zstd-compressed or raw.
// Offsets are positions in the decompressed stream.
type Decoder struct {
	zr      *zstd.Decoder
	r       *bufio.Reader
	meta    *Metadata
	symbols map[uint32]string

	offset uint64
	lastTs uint64
	stats  Stats
	onSkip func(*RecordSkipped)

	buf [MaxRecordSize]byte
}

// Open reads the capture prefix and metadata from src and positions the
// decoder at start. A start of zero means the first record. Any other start
// must be exactly a record boundary or Open fails with a MisalignmentError.
func Open(src io.Reader, start uint64, opts ...Option) (*Decoder, error) {
	d := &Decoder{stats: Stats{Skipped: make(map[uint8]int64)}}
	for _, opt := range opts {
		opt(d)
	}

	br := bufio.NewReaderSize(src, readBufferSize)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, &FrameError{Offset: 0, Reason: "reading stream prefix", Err: err}
	}

	if binary.LittleEndian.Uint32(magic) == zstdMagic {
		zr, err := zstd.NewReader(br,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
			zstd.WithDecoderMaxWindow(MaxWindowSize))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		d.zr = zr
		d.r = bufio.NewReaderSize(zr, readBufferSize)
	} else {
		d.r = br
	}

	if err := d.readMetadata(); err != nil {
		d.Close()
		return nil, err
	}

	if start != 0 && start != d.offset {
		if err := d.seek(start); err != nil {
			d.Close()
			return nil, err
		}
	}

	return d, nil
}

// Metadata returns the capture header.
func (d *Decoder) Metadata() *Metadata {
	return d.meta
}

// Offset returns the decoded position just past the last record consumed.
// After Next returns io.EOF it equals the decoded length of the capture.
func (d *Decoder) Offset() uint64 {
	return d.offset
}

// Stats returns a snapshot of decode counters.
func (d *Decoder) Stats() Stats {
	s := d.stats
	s.Skipped = make(map[uint8]int64, len(d.stats.Skipped))
	for k, v := range d.stats.Skipped {
		s.Skipped[k] = v
	}
	return s
}

// Close releases the zstd decoder.
func (d *Decoder) Close() {
	if d.zr != nil {
		d.zr.Close()
		d.zr = nil
	}
}

// Next returns the next TBBO quote and the offset immediately after it.
// It returns io.EOF at a clean end of stream and a *FrameError when the
// framing is corrupt.
func (d *Decoder) Next() (model.Quote, uint64, error) {
	for {
		start := d.offset
		h, err := d.readHeader()
		if err != nil {
			return model.Quote{}, start, err
		}

		size := h.Size()
		if h.RType != RTypeMBP1 {
			if err := d.discard(start, size-HeaderSize); err != nil {
				return model.Quote{}, start, err
			}
			d.offset += uint64(size)
			d.stats.Skipped[h.RType]++
			continue
		}

		if size != MBP1Size {
			if err := d.discard(start, size-HeaderSize); err != nil {
				return model.Quote{}, start, err
			}
			d.offset += uint64(size)
			d.skip(&RecordSkipped{Offset: start, RType: h.RType, Length: size,
				Reason: fmt.Sprintf("unexpected length %d, want %d", size, MBP1Size)})
			continue
		}

		if _, err := io.ReadFull(d.r, d.buf[HeaderSize:size]); err != nil {
			return model.Quote{}, start, &FrameError{Offset: start, Reason: "truncated record body", Err: err}
		}
		d.offset += uint64(size)

		q, reason := decodeMBP1(d.buf[:size], h)
		if reason != "" {
			d.skip(&RecordSkipped{Offset: start, RType: h.RType, Length: size, Reason: reason})
			continue
		}

		q.Symbol = d.symbolFor(q.InstrumentID)
		if q.TsEvent < d.lastTs {
			d.stats.OutOfOrder++
		} else {
			d.lastTs = q.TsEvent
		}
		if q.Crossed() {
			d.stats.Crossed++
		}
		d.stats.Records++
		return q, d.offset, nil
	}
}

func (d *Decoder) readMetadata() error {
	var prefix [prefixSize]byte
	if _, err := io.ReadFull(d.r, prefix[:]); err != nil {
		return &FrameError{Offset: 0, Reason: "reading metadata prefix", Err: err}
	}
	if [3]byte(prefix[:3]) != dbnMagic {
		return &FrameError{Offset: 0, Reason: "bad magic"}
	}
	version := prefix[3]
	if version == 0 || version > 2 {
		return &FrameError{Offset: 3, Reason: fmt.Sprintf("unsupported version %d", version)}
	}

	length := binary.LittleEndian.Uint32(prefix[4:8])
	if length > maxMetadataSize {
		return &FrameError{Offset: 4, Reason: fmt.Sprintf("metadata length %d too large", length)}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return &FrameError{Offset: prefixSize, Reason: "truncated metadata", Err: err}
	}

	meta, err := unmarshalMetadata(version, body)
	if err != nil {
		return &FrameError{Offset: prefixSize, Reason: "invalid metadata", Err: err}
	}

	d.meta = meta
	d.symbols = meta.InstrumentSymbols()
	d.offset = prefixSize + uint64(length)
	return nil
}

// readHeader reads one record header. A clean end of stream before any
// header byte returns io.EOF.
func (d *Decoder) readHeader() (Header, error) {
	start := d.offset
	n, err := io.ReadFull(d.r, d.buf[:HeaderSize])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return Header{}, io.EOF
		}
		return Header{}, &FrameError{Offset: start, Reason: "reading record header", Err: err}
	}

	h := DecodeHeader(d.buf[:HeaderSize])
	if h.Size() < HeaderSize {
		return Header{}, &FrameError{Offset: start, Reason: fmt.Sprintf("record length %d below header size", h.Size())}
	}
	return h, nil
}

func (d *Decoder) discard(start uint64, n int) error {
	if _, err := d.r.Discard(n); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return &FrameError{Offset: start, Reason: "truncated record body", Err: err}
	}
	return nil
}

// seek walks record headers up to target without decoding bodies.
func (d *Decoder) seek(target uint64) error {
	if target < d.offset {
		return &MisalignmentError{Offset: target, Nearest: 0}
	}

	for d.offset < target {
		start := d.offset
		h, err := d.readHeader()
		if errors.Is(err, io.EOF) {
			return &MisalignmentError{Offset: target, Nearest: start}
		}
		if err != nil {
			return err
		}
		if err := d.discard(start, h.Size()-HeaderSize); err != nil {
			return err
		}
		d.offset += uint64(h.Size())
		if d.offset > target {
			return &MisalignmentError{Offset: target, Nearest: start}
		}
		if h.RType == RTypeMBP1 && h.TsEvent > d.lastTs {
			d.lastTs = h.TsEvent
		}
	}
	return nil
}

func (d *Decoder) skip(rs *RecordSkipped) {
	d.stats.Malformed++
	if d.onSkip != nil {
		d.onSkip(rs)
	}
}

func (d *Decoder) symbolFor(id uint32) string {
	if s, ok := d.symbols[id]; ok {
		return s
	}
	return strconv.FormatUint(uint64(id), 10)
}
