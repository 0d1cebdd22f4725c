package dbn

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptFrame marks unrecoverable framing corruption. The rest of the
	// file cannot be trusted.
	ErrCorruptFrame = errors.New("corrupt frame")

	// ErrCheckpointMisalignment is returned when a resume offset does not fall
	// on a record boundary.
	ErrCheckpointMisalignment = errors.New("checkpoint misalignment")

	// ErrRecordSkipped marks a length-delimited record that failed structural
	// validation and was skipped.
	ErrRecordSkipped = errors.New("record skipped")
)

// FrameError reports corruption at a decoded-stream offset.
type FrameError struct {
	Offset uint64
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt frame at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt frame at offset %d: %s", e.Offset, e.Reason)
}

func (e *FrameError) Is(target error) bool { return target == ErrCorruptFrame }

func (e *FrameError) Unwrap() error { return e.Err }

// MisalignmentError reports a resume offset that is not a record boundary.
// Nearest is the last boundary at or before Offset.
type MisalignmentError struct {
	Offset  uint64
	Nearest uint64
}

func (e *MisalignmentError) Error() string {
	return fmt.Sprintf("checkpoint misalignment: offset %d is not a record boundary (previous boundary %d)", e.Offset, e.Nearest)
}

func (e *MisalignmentError) Is(target error) bool { return target == ErrCheckpointMisalignment }

// RecordSkipped describes a record dropped by structural validation.
type RecordSkipped struct {
	Offset uint64
	RType  uint8
	Length int
	Reason string
}

func (e *RecordSkipped) Error() string {
	return fmt.Sprintf("record skipped at offset %d (rtype 0x%02x, %d bytes): %s", e.Offset, e.RType, e.Length, e.Reason)
}

func (e *RecordSkipped) Is(target error) bool { return target == ErrRecordSkipped }
