package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// FileProgress is the live view of one file.
type FileProgress struct {
	ID        string          `json:"id"`
	State     model.FileState `json:"state"`
	Offset    uint64          `json:"offset"`
	Size      int64           `json:"size"`
	Batches   int             `json:"batches"`
	Records   int             `json:"records"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Snapshot is a point-in-time copy of tracker state.
type Snapshot struct {
	RunID     string         `json:"run_id,omitempty"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	Current   string         `json:"current,omitempty"`
	Files     []FileProgress `json:"files"`
}

// Tracker records progress for the status endpoint. Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	runID   string
	started time.Time
	current string
	files   map[string]*FileProgress
}

func NewTracker() *Tracker {
	return &Tracker{files: make(map[string]*FileProgress)}
}

// StartRun resets the per-run fields.
func (t *Tracker) StartRun(runID string, files []model.SourceFile) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runID = runID
	t.started = time.Now()
	t.current = ""
	for _, f := range files {
		t.files[f.ID] = &FileProgress{ID: f.ID, State: model.StatePending, Size: f.Size, UpdatedAt: t.started}
	}
}

func (t *Tracker) Begin(id string, offset uint64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.entry(id)
	p.State = model.StateInProgress
	p.Offset = offset
	p.Error = ""
	p.UpdatedAt = time.Now()
	t.current = id
}

func (t *Tracker) Update(id string, offset uint64, records int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.entry(id)
	p.Offset = offset
	p.Batches++
	p.Records += records
	p.UpdatedAt = time.Now()
}

func (t *Tracker) Finish(id string, state model.FileState, offset uint64, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.entry(id)
	p.State = state
	p.Offset = offset
	if err != nil {
		p.Error = err.Error()
	}
	p.UpdatedAt = time.Now()
	if t.current == id {
		t.current = ""
	}
}

func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Snapshot{RunID: t.runID, StartedAt: t.started, Current: t.current}
	s.Files = make([]FileProgress, 0, len(t.files))
	for _, p := range t.files {
		s.Files = append(s.Files, *p)
	}
	sort.Slice(s.Files, func(i, j int) bool { return s.Files[i].ID < s.Files[j].ID })
	return s
}

func (t *Tracker) entry(id string) *FileProgress {
	p, ok := t.files[id]
	if !ok {
		p = &FileProgress{ID: id}
		t.files[id] = p
	}
	return p
}
