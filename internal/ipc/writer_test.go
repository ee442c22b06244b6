package ipc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"signalcore/internal/model"
)

func TestWriterWritesCSVAndIsPendingUntilConsumed(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	fire := model.Fire{
		FireID:     "fire-1",
		TargetUUID: "ea-42",
		Symbol:     "EURUSD",
		Direction:  model.DirectionBuy,
		Lot:        decimal.NewFromFloat(0.10),
		TakeProfit: decimal.NewFromFloat(1.2700),
		StopLoss:   decimal.NewFromFloat(1.2600),
		Comment:    "elite-guard",
	}

	if err := w.Write(fire); err != nil {
		t.Fatalf("Write: %v", err)
	}

	pending, err := w.Pending("ea-42", "fire-1")
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if !pending {
		t.Error("expected fire file to be present immediately after Write")
	}

	path := filepath.Join(dir, "ea-42", "fire-1.csv")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fire file: %v", err)
	}
	line := strings.TrimSpace(string(raw))
	fields := strings.Split(line, ",")
	if len(fields) != 8 {
		t.Fatalf("expected 8 CSV fields (fire_id,symbol,direction,lot,price,tp,sl[,comment]), got %d: %q", len(fields), line)
	}
	if fields[0] != "fire-1" || fields[1] != "EURUSD" || fields[2] != "BUY" {
		t.Errorf("unexpected CSV prefix: %q", line)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("simulate EA consuming file: %v", err)
	}
	pending, err = w.Pending("ea-42", "fire-1")
	if err != nil {
		t.Fatalf("Pending after removal: %v", err)
	}
	if pending {
		t.Error("expected fire file absence to mean processed")
	}
}

func TestWriterNoFireFileMeansNotPending(t *testing.T) {
	w := NewWriter(t.TempDir())
	pending, err := w.Pending("ea-unknown", "fire-never-written")
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if pending {
		t.Error("expected no file to mean not pending")
	}
}
