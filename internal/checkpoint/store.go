package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

var (
	ErrNotFound  = errors.New("checkpoint not found")
	ErrCorrupt   = errors.New("checkpoint unreadable")
	ErrInvalidID = errors.New("invalid file id")
)

// Store persists per-file progress. Save must be durable before it returns.
type Store interface {
	// Load returns nil and no error when the file has no checkpoint.
	Load(ctx context.Context, fileID string) (*model.Checkpoint, error)
	Save(ctx context.Context, cp model.Checkpoint) error
	List(ctx context.Context) ([]model.Checkpoint, error)
	// Reset removes the checkpoint so the file is ingested from the start.
	Reset(ctx context.Context, fileID string) error
	Close() error
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend. location is a directory for the file
// backend and a database path for sqlite.
func Open(backend, location string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(location)
	case BackendSQLite:
		return NewSQLiteStore(location)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
	}
}

func validateID(fileID string) error {
	if fileID == "" || fileID == "." || fileID == ".." ||
		strings.ContainsAny(fileID, `/\`) || filepath.Base(fileID) != fileID {
		return fmt.Errorf("%w: %q", ErrInvalidID, fileID)
	}
	return nil
}
