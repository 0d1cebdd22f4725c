package dbn

import (
	"encoding/binary"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// Record types (rtype) found in captures. Only RTypeMBP1 is decoded; every
// other kind is skipped by length.
const (
	RTypeMBP0          uint8 = 0x00 // trades
	RTypeMBP1          uint8 = 0x01 // top of book, TBBO
	RTypeMBP10         uint8 = 0x0A
	RTypeStatus        uint8 = 0x12
	RTypeInstrumentDef uint8 = 0x13
	RTypeImbalance     uint8 = 0x14
	RTypeError         uint8 = 0x15
	RTypeSymbolMapping uint8 = 0x16
	RTypeSystem        uint8 = 0x17
	RTypeOHLCV1S       uint8 = 0x20
	RTypeMBO           uint8 = 0xA0
)

const (
	// HeaderSize is the fixed record header: length, rtype, publisher_id,
	// instrument_id, ts_event.
	HeaderSize = 16

	// MBP1Size is the full length of a TBBO record including its header.
	MBP1Size = 80

	// MaxRecordSize is the largest length a header can encode (u8 words).
	MaxRecordSize = 255 * lengthMultiplier

	lengthMultiplier = 4
	prefixSize       = 8 // "DBN" + version + u32 metadata length

	// SchemaTBBO is the metadata schema id for TBBO captures.
	SchemaTBBO uint16 = 3
	// SchemaMixed marks a capture carrying more than one schema.
	SchemaMixed uint16 = 0xFFFF

	// STypeRawSymbol and STypeInstrumentID are symbology types used in mappings.
	STypeInstrumentID uint8 = 0
	STypeRawSymbol    uint8 = 1

	zstdMagic = 0xFD2FB528
)

var dbnMagic = [3]byte{'D', 'B', 'N'}

var validSides = map[byte]bool{'A': true, 'B': true, 'N': true}

var validActions = map[byte]bool{
	'A': true, 'C': true, 'M': true, 'R': true, 'T': true, 'F': true, 'N': true,
}

// Header is the fixed prefix of every record.
type Header struct {
	Length       uint8 // in 4-byte words
	RType        uint8
	PublisherID  uint16
	InstrumentID uint32
	TsEvent      uint64
}

// Size returns the full record length in bytes.
func (h Header) Size() int {
	return int(h.Length) * lengthMultiplier
}

// EncodeHeader writes h into the first HeaderSize bytes of dst.
func EncodeHeader(dst []byte, h Header) {
	dst[0] = h.Length
	dst[1] = h.RType
	binary.LittleEndian.PutUint16(dst[2:4], h.PublisherID)
	binary.LittleEndian.PutUint32(dst[4:8], h.InstrumentID)
	binary.LittleEndian.PutUint64(dst[8:16], h.TsEvent)
}

// DecodeHeader reads a header from the first HeaderSize bytes of src.
func DecodeHeader(src []byte) Header {
	return Header{
		Length:       src[0],
		RType:        src[1],
		PublisherID:  binary.LittleEndian.Uint16(src[2:4]),
		InstrumentID: binary.LittleEndian.Uint32(src[4:8]),
		TsEvent:      binary.LittleEndian.Uint64(src[8:16]),
	}
}

// encodeMBP1 lays out a TBBO record (header included) into dst[:MBP1Size].
func encodeMBP1(dst []byte, q model.Quote) {
	EncodeHeader(dst, Header{
		Length:       MBP1Size / lengthMultiplier,
		RType:        RTypeMBP1,
		PublisherID:  q.PublisherID,
		InstrumentID: q.InstrumentID,
		TsEvent:      q.TsEvent,
	})
	le := binary.LittleEndian
	le.PutUint64(dst[16:24], uint64(q.Price))
	le.PutUint32(dst[24:28], q.Size)
	dst[28] = q.Action
	dst[29] = q.Side
	dst[30] = q.Flags
	dst[31] = 0 // depth
	le.PutUint64(dst[32:40], q.TsRecv)
	le.PutUint32(dst[40:44], uint32(q.TsInDelta))
	le.PutUint32(dst[44:48], q.Sequence)
	le.PutUint64(dst[48:56], uint64(q.BidPx))
	le.PutUint64(dst[56:64], uint64(q.AskPx))
	le.PutUint32(dst[64:68], q.BidSz)
	le.PutUint32(dst[68:72], q.AskSz)
	le.PutUint32(dst[72:76], q.BidCt)
	le.PutUint32(dst[76:80], q.AskCt)
}

// decodeMBP1 parses a full TBBO record. It returns a reason string when the
// body fails structural validation.
func decodeMBP1(src []byte, h Header) (model.Quote, string) {
	le := binary.LittleEndian
	q := model.Quote{
		TsEvent:      h.TsEvent,
		InstrumentID: h.InstrumentID,
		PublisherID:  h.PublisherID,
		Price:        int64(le.Uint64(src[16:24])),
		Size:         le.Uint32(src[24:28]),
		Action:       src[28],
		Side:         src[29],
		Flags:        src[30],
		TsRecv:       le.Uint64(src[32:40]),
		TsInDelta:    int32(le.Uint32(src[40:44])),
		Sequence:     le.Uint32(src[44:48]),
		BidPx:        int64(le.Uint64(src[48:56])),
		AskPx:        int64(le.Uint64(src[56:64])),
		BidSz:        le.Uint32(src[64:68]),
		AskSz:        le.Uint32(src[68:72]),
		BidCt:        le.Uint32(src[72:76]),
		AskCt:        le.Uint32(src[76:80]),
	}

	if depth := src[31]; depth != 0 {
		return q, "non-zero depth for top-of-book record"
	}
	if !validSides[q.Side] {
		return q, "invalid side"
	}
	if !validActions[q.Action] {
		return q, "invalid action"
	}
	return q, ""
}
