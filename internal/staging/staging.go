package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Manager writes capture files next to the input directory and moves them
// in only once complete, so discovery never sees a partial file.
type Manager struct {
	baseDir     string
	stagingRoot string
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir:     baseDir,
		stagingRoot: filepath.Join(baseDir, ".staging"),
	}
}

func (m *Manager) FinalDir() string {
	return m.baseDir
}

func (m *Manager) StagingRoot() string {
	return m.stagingRoot
}

// Write streams fn's output to a staging file and renames it to name inside
// the final directory. An existing final file is replaced. It returns the
// final path and the number of bytes written.
func (m *Manager) Write(name string, fn func(w io.Writer) error) (string, int64, error) {
	if name == "" || name != filepath.Base(name) {
		return "", 0, fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(m.stagingRoot, 0750); err != nil {
		return "", 0, fmt.Errorf("creating staging directory: %w", err)
	}

	tmpPath := filepath.Join(m.stagingRoot, name+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}

	cw := &countingWriter{w: f}
	err = fn(cw)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("writing %s: %w", name, err)
	}

	destPath := filepath.Join(m.baseDir, name)
	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("renaming temp file: %w", err)
	}

	return destPath, cw.n, nil
}

// Cleanup removes leftovers of interrupted writes.
func (m *Manager) Cleanup() error {
	return os.RemoveAll(m.stagingRoot)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
