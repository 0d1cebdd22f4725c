package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/scmhub/calendar"
	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

var dateInName = regexp.MustCompile(`(?:^|[^0-9])(\d{8})(?:[^0-9]|$)`)

// Discover lists capture files in dir whose names match pattern, sorted by
// name. Subdirectories are not scanned. Every file starts out pending.
func Discover(dir, pattern string, logger *zap.Logger) ([]model.SourceFile, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}

	var files []model.SourceFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); !ok {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}

		f := model.SourceFile{
			ID:    e.Name(),
			Path:  filepath.Join(dir, e.Name()),
			Size:  info.Size(),
			State: model.StatePending,
		}
		if d, ok := ParseFileDate(e.Name()); ok {
			f.Date = d
			if !IsMarketDay(d) {
				logger.Warn("capture dated on a non-market day", zap.String("file", f.ID), zap.String("date", d.Format("2006-01-02")))
			}
		}
		files = append(files, f)
	}

	return files, nil
}

// ParseFileDate extracts a YYYYMMDD date from a capture name such as
// xnas-itch-20240102.tbbo.dbn.zst.
func ParseFileDate(name string) (time.Time, bool) {
	m := dateInName.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var nyse = calendar.XNYS()

// IsMarketDay checks if the given date is a trading day (not weekend/holiday)
func IsMarketDay(date time.Time) bool {
	// Noon in New York keeps the date from shifting across time zones.
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	t := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, loc)
	return nyse.IsBusinessDay(t)
}
