package schema

import (
	"errors"
	"testing"

	"signalcore/internal/errs"
	"signalcore/internal/model"
)

func TestValidateSignalGenerated(t *testing.T) {
	data := map[string]any{
		"signal_id":  "sig-1",
		"symbol":     "EURUSD",
		"direction":  "BUY",
		"confidence": float64(75),
	}
	if err := Validate(model.EventSignalGenerated, data); err != nil {
		t.Fatalf("expected valid payload to pass, got %v", err)
	}
}

func TestValidateMissingRequiredField(t *testing.T) {
	data := map[string]any{"symbol": "EURUSD", "direction": "BUY"}
	err := Validate(model.EventSignalGenerated, data)
	if !errors.Is(err, errs.ErrValidationRejected) {
		t.Fatalf("expected ErrValidationRejected, got %v", err)
	}
}

func TestValidateForbiddenSymbol(t *testing.T) {
	data := map[string]any{
		"signal_id":  "sig-1",
		"symbol":     "XAUUSD",
		"direction":  "BUY",
		"confidence": float64(50),
	}
	err := Validate(model.EventSignalGenerated, data)
	if !errors.Is(err, errs.ErrValidationRejected) {
		t.Fatalf("expected XAUUSD to be rejected, got %v", err)
	}
}

func TestValidateLowercaseSymbolRejected(t *testing.T) {
	data := map[string]any{
		"signal_id":  "sig-1",
		"symbol":     "eurusd",
		"direction":  "BUY",
		"confidence": float64(50),
	}
	if err := Validate(model.EventSignalGenerated, data); !errors.Is(err, errs.ErrValidationRejected) {
		t.Fatalf("expected lowercase symbol to be rejected, got %v", err)
	}
}

func TestValidateConfidenceOutOfRange(t *testing.T) {
	data := map[string]any{
		"signal_id":  "sig-1",
		"symbol":     "EURUSD",
		"direction":  "BUY",
		"confidence": float64(150),
	}
	if err := Validate(model.EventSignalGenerated, data); !errors.Is(err, errs.ErrValidationRejected) {
		t.Fatalf("expected out-of-range confidence to be rejected")
	}
}

func TestValidateUnknownDirection(t *testing.T) {
	data := map[string]any{
		"signal_id":  "sig-1",
		"symbol":     "EURUSD",
		"direction":  "HOLD",
		"confidence": float64(50),
	}
	if err := Validate(model.EventSignalGenerated, data); !errors.Is(err, errs.ErrValidationRejected) {
		t.Fatalf("expected unknown direction to be rejected")
	}
}

func TestValidateUnknownEventType(t *testing.T) {
	if err := Validate(model.EventType("not_a_real_type"), map[string]any{}); !errors.Is(err, errs.ErrValidationRejected) {
		t.Fatalf("expected unknown event type to be rejected")
	}
}

func TestLookupAllEightTypes(t *testing.T) {
	types := []model.EventType{
		model.EventSignalGenerated, model.EventFireCommand, model.EventTradeExecuted,
		model.EventBalanceUpdate, model.EventSystemHealth, model.EventUserAction,
		model.EventMarketData, model.EventPatternDetected,
	}
	if len(types) != 8 {
		t.Fatalf("test table must enumerate all eight event types, has %d", len(types))
	}
	for _, ty := range types {
		if _, ok := Lookup(ty); !ok {
			t.Errorf("expected %s to be registered", ty)
		}
	}
}
