package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

const fileSuffix = ".checkpoint.json"

// FileStore keeps one JSON document per source file in a directory.
type FileStore struct {
	dir string
}

type fileRecord struct {
	FileID      string          `json:"file_id"`
	Offset      uint64          `json:"offset"`
	LastTsEvent uint64          `json:"last_ts_event"`
	State       model.FileState `json:"state"`
	Batches     int64           `json:"batches"`
	Records     int64           `json:"records"`
	RunID       string          `json:"run_id,omitempty"`
	Error       string          `json:"error,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("checkpoint directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(fileID string) string {
	return filepath.Join(s.dir, fileID+fileSuffix)
}

func (s *FileStore) Load(_ context.Context, fileID string) (*model.Checkpoint, error) {
	if err := validateID(fileID); err != nil {
		return nil, err
	}
	return s.read(s.path(fileID))
}

func (s *FileStore) read(path string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	cp := model.Checkpoint(rec)
	return &cp, nil
}

// Save writes the checkpoint to a temp file, syncs it and renames it into
// place, then syncs the directory so the rename survives a crash.
func (s *FileStore) Save(_ context.Context, cp model.Checkpoint) error {
	if err := validateID(cp.FileID); err != nil {
		return err
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(fileRecord(cp), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	f, err := os.CreateTemp(s.dir, cp.FileID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := f.Name()

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing checkpoint: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, s.path(cp.FileID)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return syncDir(s.dir)
}

func (s *FileStore) List(_ context.Context) ([]model.Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}

	var out []model.Checkpoint
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		cp, err := s.read(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if cp != nil {
			out = append(out, *cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out, nil
}

func (s *FileStore) Reset(_ context.Context, fileID string) error {
	if err := validateID(fileID); err != nil {
		return err
	}
	err := os.Remove(s.path(fileID))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	if err != nil {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	return syncDir(s.dir)
}

func (s *FileStore) Close() error { return nil }

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening checkpoint directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing checkpoint directory: %w", err)
	}
	return nil
}
