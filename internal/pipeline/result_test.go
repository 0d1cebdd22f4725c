package pipeline

import (
	"errors"
	"testing"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

func TestResultAccounting(t *testing.T) {
	res := &Result{Total: 5}
	res.add(FileResult{ID: "a", State: model.StateComplete, Batches: 3, Records: 2500})
	res.add(FileResult{ID: "b", State: model.StateComplete, Skipped: true})
	res.add(FileResult{ID: "c", State: model.StateFailed, Batches: 1, Records: 1000, Err: errors.New("corrupt frame")})
	res.add(FileResult{ID: "d", State: model.StateInProgress})
	res.add(FileResult{ID: "e", State: model.StatePending})

	if res.Complete != 2 || res.Skipped != 1 || res.Failed != 1 || res.Interrupted != 1 || res.Pending != 1 {
		t.Errorf("unexpected counts %+v", res)
	}
	if res.Batches != 4 || res.Records != 3500 {
		t.Errorf("Batches=%d Records=%d", res.Batches, res.Records)
	}
	if res.OK() || res.ExitCode() != 1 {
		t.Error("run with failures must not be OK")
	}
	if errs := res.Errors(); len(errs) != 1 || errs[0] != "c: corrupt frame" {
		t.Errorf("Errors() = %v", errs)
	}
	if !res.Files[3].Interrupted() {
		t.Error("in-progress file should report Interrupted")
	}
}

func TestResultAllComplete(t *testing.T) {
	res := &Result{Total: 1}
	res.add(FileResult{ID: "a", State: model.StateComplete})
	if !res.OK() || res.ExitCode() != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode())
	}

	empty := &Result{}
	if empty.ExitCode() != 0 {
		t.Error("an empty run has nothing left to do")
	}
}
