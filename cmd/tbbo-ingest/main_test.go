package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgnsrekt/tbbo-ingest/internal/checkpoint"
	"github.com/dgnsrekt/tbbo-ingest/internal/config"
	"github.com/dgnsrekt/tbbo-ingest/internal/model"
	"github.com/dgnsrekt/tbbo-ingest/internal/pipeline"
)

func TestSetupLoggerWritesRotatingFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := setupLogger(false, &config.LoggingConfig{
		Enabled: true, Directory: dir, Level: "info", MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1,
	})
	if err != nil {
		t.Fatalf("setupLogger failed: %v", err)
	}
	l.Info("hello from test")
	l.Debug("filtered out")
	_ = l.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "tbbo-ingest.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing message: %s", data)
	}
	if strings.Contains(string(data), "filtered out") {
		t.Error("debug message should be filtered at info level")
	}
}

func TestSetupLoggerWithoutConfig(t *testing.T) {
	if _, err := setupLogger(true, nil); err != nil {
		t.Fatalf("setupLogger failed: %v", err)
	}
}

func TestResultError(t *testing.T) {
	ok := &pipeline.Result{Total: 2, Complete: 2}
	if err := resultError(ok, nil); err != nil {
		t.Errorf("complete run: unexpected error %v", err)
	}

	partial := &pipeline.Result{Total: 3, Complete: 1, Failed: 2}
	if err := resultError(partial, nil); err == nil || !strings.Contains(err.Error(), "2 of 3") {
		t.Errorf("partial run: got %v", err)
	}

	if err := resultError(&pipeline.Result{Total: 1}, context.Canceled); err == nil || !strings.HasPrefix(err.Error(), "interrupted") {
		t.Errorf("cancelled run: got %v", err)
	}

	boom := errors.New("boom")
	if err := resultError(ok, boom); !errors.Is(err, boom) {
		t.Errorf("run error should pass through, got %v", err)
	}
}

func TestOutstanding(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	_ = store.Save(ctx, model.Checkpoint{FileID: "done", State: model.StateComplete})
	_ = store.Save(ctx, model.Checkpoint{FileID: "broken", State: model.StateFailed})
	_ = store.Save(ctx, model.Checkpoint{FileID: "half", State: model.StateInProgress})

	files := []model.SourceFile{{ID: "broken"}, {ID: "done"}, {ID: "half"}, {ID: "new"}}
	got, err := outstanding(ctx, store, files)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "half" || got[1].ID != "new" {
		t.Errorf("outstanding = %+v", got)
	}
}
