package staging

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestStagingManager(t *testing.T) {
	tmpDir := t.TempDir()
	mgr := NewManager(tmpDir)

	if mgr.FinalDir() != tmpDir {
		t.Errorf("expected FinalDir %s, got %s", tmpDir, mgr.FinalDir())
	}
	if want := filepath.Join(tmpDir, ".staging"); mgr.StagingRoot() != want {
		t.Errorf("expected StagingRoot %s, got %s", want, mgr.StagingRoot())
	}

	path, n, err := mgr.Write("a.tbbo.dbn.zst", func(w io.Writer) error {
		_, err := w.Write([]byte("capture"))
		return err
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if path != filepath.Join(tmpDir, "a.tbbo.dbn.zst") || n != 7 {
		t.Errorf("Write = %s, %d", path, n)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading final file: %v", err)
	}
	if string(content) != "capture" {
		t.Errorf("expected 'capture', got %q", content)
	}

	entries, _ := os.ReadDir(mgr.StagingRoot())
	if len(entries) != 0 {
		t.Errorf("staging not empty after commit: %d entries", len(entries))
	}

	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := os.Stat(mgr.StagingRoot()); !os.IsNotExist(err) {
		t.Error("staging directory should be removed")
	}
}

func TestStagingWriteFailureLeavesNothing(t *testing.T) {
	tmpDir := t.TempDir()
	mgr := NewManager(tmpDir)
	boom := errors.New("boom")

	_, _, err := mgr.Write("b.tbbo.dbn.zst", func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "b.tbbo.dbn.zst")); !os.IsNotExist(err) {
		t.Error("partial file reached the final directory")
	}
	entries, _ := os.ReadDir(mgr.StagingRoot())
	if len(entries) != 0 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestStagingRejectsPaths(t *testing.T) {
	mgr := NewManager(t.TempDir())
	for _, name := range []string{"", "../x", "sub/x"} {
		if _, _, err := mgr.Write(name, func(io.Writer) error { return nil }); err == nil {
			t.Errorf("expected error for %q", name)
		}
	}
}
