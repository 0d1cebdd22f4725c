package pipeline

import (
	"fmt"
	"time"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// FileResult is the outcome of one file within a run.
type FileResult struct {
	ID      string
	State   model.FileState
	Skipped bool // already complete before this run
	Batches int
	Records int
	Offset  uint64
	Err     error
}

// Interrupted reports whether the file was left in progress by shutdown.
func (r FileResult) Interrupted() bool {
	return r.State == model.StateInProgress
}

// Result summarizes a run over a set of files.
type Result struct {
	RunID       string
	Total       int
	Complete    int
	Skipped     int
	Failed      int
	Interrupted int
	Pending     int
	Batches     int
	Records     int
	Files       []FileResult
	Duration    time.Duration
}

func (r *Result) add(fr FileResult) {
	r.Files = append(r.Files, fr)
	r.Batches += fr.Batches
	r.Records += fr.Records

	switch fr.State {
	case model.StateComplete:
		r.Complete++
		if fr.Skipped {
			r.Skipped++
		}
	case model.StateFailed:
		r.Failed++
	case model.StateInProgress:
		r.Interrupted++
	default:
		r.Pending++
	}
}

// OK reports whether every file reached the complete state.
func (r *Result) OK() bool {
	return r.Complete == r.Total
}

// ExitCode is 0 when every file completed and 1 otherwise.
func (r *Result) ExitCode() int {
	if r.OK() {
		return 0
	}
	return 1
}

// Errors lists one line per failed file.
func (r *Result) Errors() []string {
	var out []string
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, fmt.Sprintf("%s: %v", f.ID, f.Err))
		}
	}
	return out
}
