package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrSinkTransient marks a failure worth retrying with the same batch.
	ErrSinkTransient = errors.New("sink transient failure")

	// ErrSinkRejected marks a batch the sink will never accept.
	ErrSinkRejected = errors.New("sink rejected batch")

	// ErrRetriesExhausted is returned once the attempt budget is spent.
	ErrRetriesExhausted = errors.New("sink retries exhausted")
)

// RetriableError is implemented by errors that know whether a retry can help.
type RetriableError interface {
	error
	IsRetriable() bool
}

type Kind int

const (
	KindTransient Kind = iota + 1
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is a classified sink failure.
type Error struct {
	Kind     Kind
	Op       string // "ilp", "copy", ...
	Status   int    // HTTP status for ILP, 0 otherwise
	Code     string // SQLSTATE for pgwire, empty otherwise
	Attempts int    // set by RetryWriter
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" (sqlstate %s)", e.Code)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) IsRetriable() bool { return e.Kind == KindTransient }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrSinkTransient:
		return e.Kind == KindTransient
	case ErrSinkRejected:
		return e.Kind == KindRejected
	case ErrRetriesExhausted:
		return e.Kind == KindTransient && e.Attempts > 0
	}
	return false
}

func transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func rejected(op string, err error) *Error {
	return &Error{Kind: KindRejected, Op: op, Err: err}
}

// IsTransient reports whether err is worth retrying. Classified errors decide
// for themselves; network failures and timeouts are transient; anything else
// is treated as permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}
