// Package dbn decodes top-of-book quotes from Databento Binary Encoding
// captures.
//
// A capture is a zstd stream holding a "DBN" prefix, a metadata block and a
// sequence of length-prefixed records. Only MBP-1 records (TBBO) are decoded;
// every other record kind is skipped by its length. Positions reported by the
// decoder are offsets into the decompressed stream and always fall on record
// boundaries, which makes them usable as resume checkpoints.
package dbn
