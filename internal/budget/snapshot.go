package budget

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/comigor/recap/internal/logger"
)

// maxHistory bounds how many past periods the snapshot retains.
const maxHistory = 12

// Usage is one period's accumulated spend, the unit persisted in the
// snapshot file.
type Usage struct {
	PeriodKey    string  `json:"period_key"`
	Spent        float64 `json:"spent"`
	InputUnits   int64   `json:"input_units"`
	OutputUnits  int64   `json:"output_units"`
	RequestCount int64   `json:"request_count"`
}

type snapshotFile struct {
	Current Usage   `json:"current"`
	History []Usage `json:"history,omitempty"`
}

// loadSnapshot reads the snapshot file. A missing file yields zero usage; a
// corrupt file is logged and treated as missing rather than crashing startup.
func loadSnapshot(path string) snapshotFile {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.L.Warn("budget snapshot unreadable, starting fresh", "path", path, "error", err)
		}
		return snapshotFile{}
	}
	var snap snapshotFile
	if err := json.Unmarshal(raw, &snap); err != nil {
		logger.L.Warn("budget snapshot corrupt, starting fresh", "path", path, "error", err)
		return snapshotFile{}
	}
	return snap
}

// saveSnapshot rewrites the snapshot file. Failure is non-fatal: the
// in-memory ledger stays authoritative until the next process start.
func saveSnapshot(path string, snap snapshotFile) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("budget snapshot marshal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("budget snapshot write: %w", err)
	}
	return nil
}
