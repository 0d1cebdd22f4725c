package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// MemoryStore keeps checkpoints in process memory. Used for dry runs.
type MemoryStore struct {
	mu  sync.Mutex
	cps map[string]model.Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cps: make(map[string]model.Checkpoint)}
}

func (s *MemoryStore) Load(_ context.Context, fileID string) (*model.Checkpoint, error) {
	if err := validateID(fileID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.cps[fileID]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, cp model.Checkpoint) error {
	if err := validateID(cp.FileID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cps[cp.FileID] = cp
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Checkpoint, 0, len(s.cps))
	for _, cp := range s.cps {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out, nil
}

func (s *MemoryStore) Reset(_ context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cps[fileID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	delete(s.cps, fileID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
