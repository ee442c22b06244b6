package ipc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// ConfirmationPayload is the JSON object an EA writes back:
// {fire_id, status, ticket, price, timestamp}.
type ConfirmationPayload struct {
	FireID    string          `json:"fire_id"`
	Status    string          `json:"status"`
	Ticket    string          `json:"ticket"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Poller scans a directory tree for confirmation files dropped by EAs and
// hands decoded payloads to a handler, removing each file once handled so
// it is never processed twice from disk (the confirmation listener's own
// (fire_id, sequence) idempotency check is the authoritative guard; this
// just avoids doing duplicate work on every poll tick).
type Poller struct {
	BaseDir string
}

// NewPoller returns a Poller rooted at baseDir (the same root Writer writes
// under — confirmation files live alongside the per-EA fire directories).
func NewPoller(baseDir string) *Poller {
	return &Poller{BaseDir: baseDir}
}

// Scan walks BaseDir for "*.confirmation.json" files, parses each, invokes
// handle, and removes the file on success. A parse failure is reported but
// does not stop the scan from proceeding to the next file.
func (p *Poller) Scan(handle func(ConfirmationPayload) error) error {
	entries, err := filepath.Glob(filepath.Join(p.BaseDir, "*", "*.confirmation.json"))
	if err != nil {
		return fmt.Errorf("ipc: glob confirmation files: %w", err)
	}

	var firstErr error
	for _, path := range entries {
		if err := p.processOne(path, handle); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Poller) processOne(path string, handle func(ConfirmationPayload) error) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ipc: read confirmation file %s: %w", path, err)
	}

	var payload ConfirmationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("ipc: decode confirmation file %s: %w", path, err)
	}

	if err := handle(payload); err != nil {
		return fmt.Errorf("ipc: handle confirmation %s: %w", payload.FireID, err)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("ipc: remove confirmation file %s: %w", path, err)
	}
	return nil
}
