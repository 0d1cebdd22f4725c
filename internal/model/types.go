package model

import (
	"fmt"
	"time"
)

// FileState is the lifecycle of a source file within the pipeline.
type FileState string

const (
	StatePending    FileState = "pending"
	StateInProgress FileState = "in-progress"
	StateComplete   FileState = "complete"
	StateFailed     FileState = "failed"
)

// SourceFile is one compressed capture file discovered in the input directory.
type SourceFile struct {
	ID      string // file identity: base name
	Path    string
	Size    int64 // compressed length in bytes
	Date    time.Time
	Symbols []string
	Cursor  uint64 // decoded byte offset of the last committed batch boundary
	State   FileState
}

func (f SourceFile) String() string {
	return fmt.Sprintf("%s (%s)", f.ID, f.State)
}

// Batch is an ordered run of quotes from a single source file, contiguous in
// source order. StartOffset and EndOffset are decoded-stream positions and
// always fall on record boundaries.
type Batch struct {
	FileID      string
	Seq         int
	Quotes      []Quote
	StartOffset uint64
	EndOffset   uint64
	Bytes       int
	LastTsEvent uint64
}

// Len returns the number of quotes in the batch.
func (b *Batch) Len() int {
	return len(b.Quotes)
}

// Checkpoint is the durable progress marker for one source file.
type Checkpoint struct {
	FileID      string
	Offset      uint64
	LastTsEvent uint64
	State       FileState
	Batches     int64
	Records     int64
	RunID       string
	Error       string
	UpdatedAt   time.Time
}

// Complete reports whether the file was fully ingested.
func (c *Checkpoint) Complete() bool {
	return c != nil && c.State == StateComplete
}
