// Package ipc implements the EA file-drop contract: a CSV fire instruction
// written per fire, and a JSON confirmation file the EA writes back.
// Presence of the fire file means pending; absence means processed (spec
// §5, "EA IPC channel").
package ipc

import (
	"fmt"
	"os"
	"path/filepath"

	"signalcore/internal/model"
)

// Writer drops fire instructions into a per-EA directory as CSV files
// named "<fire_id>.csv".
type Writer struct {
	// BaseDir is the root directory; one subdirectory per target_uuid is
	// created under it on first use.
	BaseDir string
}

// NewWriter returns a Writer rooted at baseDir.
func NewWriter(baseDir string) *Writer {
	return &Writer{BaseDir: baseDir}
}

// dirFor returns (and ensures) the EA-specific subdirectory.
func (w *Writer) dirFor(targetUUID string) (string, error) {
	dir := filepath.Join(w.BaseDir, targetUUID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ipc: create EA directory %s: %w", dir, err)
	}
	return dir, nil
}

// Write drops f as a CSV file in the target EA's directory: atomic via a
// temp file + rename, so the EA never observes a partially-written fire.
// Format: fire_id,symbol,direction,lot,price,tp,sl[,comment].
func (w *Writer) Write(f model.Fire) error {
	dir, err := w.dirFor(f.TargetUUID)
	if err != nil {
		return err
	}

	// price is left blank: fires execute at market, the EA fills the
	// actual price in on confirmation rather than reading one here.
	line := fmt.Sprintf("%s,%s,%s,%s,,%s,%s",
		f.FireID, f.Symbol, f.Direction, f.Lot.String(), f.TakeProfit.String(), f.StopLoss.String())
	if f.Comment != "" {
		line += "," + f.Comment
	}
	line += "\n"

	path := filepath.Join(dir, f.FireID+".csv")
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, []byte(line), 0o644); err != nil {
		return fmt.Errorf("ipc: write temp fire file for %s: %w", f.FireID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ipc: rename fire file for %s: %w", f.FireID, err)
	}
	return nil
}

// Pending reports whether target's fire file still exists: presence
// indicates the EA has not yet picked it up.
func (w *Writer) Pending(targetUUID, fireID string) (bool, error) {
	path := filepath.Join(w.BaseDir, targetUUID, fireID+".csv")
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("ipc: stat fire file for %s: %w", fireID, err)
}
