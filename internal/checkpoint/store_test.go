package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fs, err := Open(BackendFile, filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	ss, err := Open(BackendSQLite, filepath.Join(dir, "db", "checkpoints.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		fs.Close()
		ss.Close()
	})
	return map[string]Store{"file": fs, "sqlite": ss, "memory": NewMemoryStore()}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			cp, err := store.Load(ctx, "a.tbbo.dbn.zst")
			if err != nil {
				t.Fatalf("Load of missing checkpoint failed: %v", err)
			}
			if cp != nil {
				t.Fatalf("expected nil for missing checkpoint, got %+v", cp)
			}

			saved := model.Checkpoint{
				FileID:      "a.tbbo.dbn.zst",
				Offset:      80_412,
				LastTsEvent: 1704205800000000000,
				State:       model.StateInProgress,
				Batches:     3,
				Records:     3000,
				RunID:       "run-1",
				UpdatedAt:   time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC),
			}
			if err := store.Save(ctx, saved); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := store.Load(ctx, saved.FileID)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got == nil {
				t.Fatal("Load returned nil after Save")
			}
			if got.Offset != saved.Offset || got.LastTsEvent != saved.LastTsEvent ||
				got.State != saved.State || got.Records != saved.Records || got.RunID != saved.RunID {
				t.Errorf("Load = %+v, want %+v", got, saved)
			}
			if !got.UpdatedAt.Equal(saved.UpdatedAt) {
				t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, saved.UpdatedAt)
			}

			// Overwrite
			saved.Offset = 160_412
			saved.State = model.StateComplete
			if err := store.Save(ctx, saved); err != nil {
				t.Fatalf("second Save failed: %v", err)
			}
			got, _ = store.Load(ctx, saved.FileID)
			if got.Offset != 160_412 || !got.Complete() {
				t.Errorf("overwrite not visible: %+v", got)
			}

			if err := store.Save(ctx, model.Checkpoint{FileID: "b.tbbo.dbn.zst", State: model.StateFailed, Error: "corrupt frame"}); err != nil {
				t.Fatalf("Save b failed: %v", err)
			}
			list, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(list) != 2 || list[0].FileID != "a.tbbo.dbn.zst" || list[1].Error != "corrupt frame" {
				t.Errorf("List = %+v", list)
			}

			if err := store.Reset(ctx, "b.tbbo.dbn.zst"); err != nil {
				t.Fatalf("Reset failed: %v", err)
			}
			if cp, _ := store.Load(ctx, "b.tbbo.dbn.zst"); cp != nil {
				t.Errorf("checkpoint still present after Reset: %+v", cp)
			}
			if err := store.Reset(ctx, "b.tbbo.dbn.zst"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Reset: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreRejectsPathLikeIDs(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		for _, id := range []string{"", "..", "../escape", "dir/file"} {
			if _, err := store.Load(ctx, id); !errors.Is(err, ErrInvalidID) {
				t.Errorf("%s: Load(%q) expected ErrInvalidID, got %v", name, id, err)
			}
			if err := store.Save(ctx, model.Checkpoint{FileID: id}); !errors.Is(err, ErrInvalidID) {
				t.Errorf("%s: Save(%q) expected ErrInvalidID, got %v", name, id, err)
			}
		}
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := store.Save(context.Background(), model.Checkpoint{FileID: "x.dbn.zst", Offset: uint64(i)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("expected a single checkpoint file, found %v", names)
	}
}

func TestFileStoreCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	if err := os.WriteFile(filepath.Join(dir, "bad.dbn.zst"+fileSuffix), []byte("{not json"), 0640); err != nil {
		t.Fatal(err)
	}
	_, err := store.Load(context.Background(), "bad.dbn.zst")
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s1.Save(ctx, model.Checkpoint{FileID: "f.dbn.zst", Offset: 4242, State: model.StateInProgress}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	cp, err := s2.Load(ctx, "f.dbn.zst")
	if err != nil || cp == nil {
		t.Fatalf("Load after reopen: cp=%v err=%v", cp, err)
	}
	if cp.Offset != 4242 {
		t.Errorf("Offset = %d, want 4242", cp.Offset)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", t.TempDir()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
