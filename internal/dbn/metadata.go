package dbn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

const (
	v1SymbolCstrLen = 22
	v1Reserved      = 47
	v2Reserved      = 53
	maxMetadataSize = 64 << 20
	datasetLen      = 16
)

// Metadata is the capture header that precedes the record stream.
type Metadata struct {
	Version       uint8
	Dataset       string
	Schema        uint16
	Start         uint64 // ns since epoch
	End           uint64
	Limit         uint64
	STypeIn       uint8
	STypeOut      uint8
	TsOut         bool
	SymbolCstrLen uint16

	Symbols  []string
	Partial  []string
	NotFound []string
	Mappings []SymbolMapping
}

// SymbolMapping resolves a requested symbol to the ids it mapped to over time.
type SymbolMapping struct {
	RawSymbol string
	Intervals []MappingInterval
}

// MappingInterval is a date range (YYYYMMDD) during which RawSymbol mapped
// to Symbol.
type MappingInterval struct {
	StartDate uint32
	EndDate   uint32
	Symbol    string
}

// InstrumentSymbols builds an instrument_id to raw symbol index from the
// mappings. Intervals whose symbol is not numeric are ignored.
func (m *Metadata) InstrumentSymbols() map[uint32]string {
	out := make(map[uint32]string)
	for _, sm := range m.Mappings {
		for _, iv := range sm.Intervals {
			id, err := strconv.ParseUint(iv.Symbol, 10, 32)
			if err != nil {
				continue
			}
			out[uint32(id)] = sm.RawSymbol
		}
	}
	return out
}

func (m *Metadata) cstrLen() int {
	if m.Version < 2 {
		return v1SymbolCstrLen
	}
	if m.SymbolCstrLen == 0 {
		return v1SymbolCstrLen
	}
	return int(m.SymbolCstrLen)
}

// marshal encodes the metadata body (everything after the 8-byte prefix).
func (m *Metadata) marshal() ([]byte, error) {
	var buf bytes.Buffer
	le := binary.LittleEndian
	width := m.cstrLen()

	buf.Write(fixedString(m.Dataset, datasetLen))
	_ = binary.Write(&buf, le, m.Schema)
	_ = binary.Write(&buf, le, m.Start)
	_ = binary.Write(&buf, le, m.End)
	_ = binary.Write(&buf, le, m.Limit)
	buf.WriteByte(m.STypeIn)
	buf.WriteByte(m.STypeOut)
	if m.TsOut {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	if m.Version >= 2 {
		_ = binary.Write(&buf, le, uint16(width))
		buf.Write(make([]byte, v2Reserved))
	} else {
		buf.Write(make([]byte, v1Reserved))
	}
	_ = binary.Write(&buf, le, uint32(0)) // schema_definition_length

	for _, list := range [][]string{m.Symbols, m.Partial, m.NotFound} {
		_ = binary.Write(&buf, le, uint32(len(list)))
		for _, s := range list {
			if len(s) >= width {
				return nil, fmt.Errorf("symbol %q exceeds %d bytes", s, width-1)
			}
			buf.Write(fixedString(s, width))
		}
	}

	_ = binary.Write(&buf, le, uint32(len(m.Mappings)))
	for _, sm := range m.Mappings {
		buf.Write(fixedString(sm.RawSymbol, width))
		_ = binary.Write(&buf, le, uint32(len(sm.Intervals)))
		for _, iv := range sm.Intervals {
			_ = binary.Write(&buf, le, iv.StartDate)
			_ = binary.Write(&buf, le, iv.EndDate)
			buf.Write(fixedString(iv.Symbol, width))
		}
	}

	return buf.Bytes(), nil
}

// unmarshalMetadata parses the metadata body for the given version.
func unmarshalMetadata(version uint8, body []byte) (*Metadata, error) {
	r := &byteReader{buf: body}
	m := &Metadata{Version: version}

	m.Dataset = r.cstr(datasetLen)
	m.Schema = r.u16()
	m.Start = r.u64()
	m.End = r.u64()
	m.Limit = r.u64()
	m.STypeIn = r.u8()
	m.STypeOut = r.u8()
	m.TsOut = r.u8() != 0
	if version >= 2 {
		m.SymbolCstrLen = r.u16()
		r.skip(v2Reserved)
	} else {
		m.SymbolCstrLen = v1SymbolCstrLen
		r.skip(v1Reserved)
	}
	if r.err != nil {
		return nil, r.err
	}

	if n := r.u32(); n != 0 {
		return nil, fmt.Errorf("unsupported schema definition of %d bytes", n)
	}

	width := m.cstrLen()
	m.Symbols = r.cstrList(width)
	m.Partial = r.cstrList(width)
	m.NotFound = r.cstrList(width)

	count := r.u32()
	if r.err == nil && int(count) > len(body) {
		return nil, fmt.Errorf("mapping count %d exceeds metadata size", count)
	}
	for i := uint32(0); i < count && r.err == nil; i++ {
		sm := SymbolMapping{RawSymbol: r.cstr(width)}
		n := r.u32()
		if r.err == nil && int(n) > len(body) {
			return nil, fmt.Errorf("interval count %d exceeds metadata size", n)
		}
		for j := uint32(0); j < n && r.err == nil; j++ {
			sm.Intervals = append(sm.Intervals, MappingInterval{
				StartDate: r.u32(),
				EndDate:   r.u32(),
				Symbol:    r.cstr(width),
			})
		}
		m.Mappings = append(m.Mappings, sm)
	}

	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func fixedString(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	return b
}

var errShortMetadata = errors.New("metadata truncated")

// byteReader is a sticky-error little-endian cursor over the metadata body.
type byteReader struct {
	buf []byte
	pos int
	err error
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.err = errShortMetadata
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *byteReader) skip(n int) { r.take(n) }

func (r *byteReader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *byteReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *byteReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *byteReader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *byteReader) cstr(width int) string {
	b := r.take(width)
	if b == nil {
		return ""
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (r *byteReader) cstrList(width int) []string {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if int(n)*width > len(r.buf)-r.pos {
		r.err = errShortMetadata
		return nil
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, r.cstr(width))
	}
	return out
}
