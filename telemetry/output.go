package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/squadsim/config"
)

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir          string
	combatFile   *os.File
	perfFile     *os.File
	bookmarkFile *os.File

	combatHeaderWritten   bool
	perfHeaderWritten     bool
	bookmarkHeaderWritten bool
}

// NewOutputManager creates the output directory and its CSV files.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	files := []struct {
		name string
		dst  **os.File
	}{
		{"combat.csv", &om.combatFile},
		{"perf.csv", &om.perfFile},
		{"bookmarks.csv", &om.bookmarkFile},
	}
	for _, f := range files {
		fh, err := os.Create(filepath.Join(dir, f.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", f.name, err)
		}
		*f.dst = fh
	}
	return om, nil
}

// writeRow appends one record, emitting the header on the first call.
func writeRow[T any](f *os.File, headerWritten *bool, row T) error {
	records := []T{row}
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteCombat writes a window row to combat.csv.
func (om *OutputManager) WriteCombat(stats CombatStats) error {
	if om == nil {
		return nil
	}
	if err := writeRow(om.combatFile, &om.combatHeaderWritten, stats); err != nil {
		return fmt.Errorf("writing combat: %w", err)
	}
	return nil
}

// WritePerf writes a performance row to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, runID string, windowEnd int64) error {
	if om == nil {
		return nil
	}
	if err := writeRow(om.perfFile, &om.perfHeaderWritten, stats.ToCSV(runID, windowEnd)); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteBookmark writes a bookmark row to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	if err := writeRow(om.bookmarkFile, &om.bookmarkHeaderWritten, b); err != nil {
		return fmt.Errorf("writing bookmark: %w", err)
	}
	return nil
}

// SnapshotDir is where bookmark snapshots go.
func (om *OutputManager) SnapshotDir() string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, "snapshots")
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, f := range []*os.File{om.combatFile, om.perfFile, om.bookmarkFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
