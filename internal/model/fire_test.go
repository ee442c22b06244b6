package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFireStatusTerminal(t *testing.T) {
	cases := map[FireStatus]bool{
		FireStatusPending:   false,
		FireStatusEnqueued:  false,
		FireStatusRouted:    false,
		FireStatusFilled:    true,
		FireStatusRejected:  true,
		FireStatusCancelled: true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestDeriveIdemKeyDeterministic(t *testing.T) {
	lot := decimal.NewFromFloat(0.10)
	at := time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC)

	a := DeriveIdemKey("user-42", "sig-1", lot, at)
	b := DeriveIdemKey("user-42", "sig-1", lot, at)
	if a != b {
		t.Fatalf("DeriveIdemKey not deterministic: %s != %s", a, b)
	}
}

func TestDeriveIdemKeyBucketsNearbyTimestamps(t *testing.T) {
	lot := decimal.NewFromFloat(0.10)
	t1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Second)

	a := DeriveIdemKey("user-42", "sig-1", lot, t1)
	b := DeriveIdemKey("user-42", "sig-1", lot, t2)
	if a != b {
		t.Errorf("expected timestamps within the bucket width to collide, got %s != %s", a, b)
	}
}

func TestDeriveIdemKeyDiffersByInput(t *testing.T) {
	lot := decimal.NewFromFloat(0.10)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	base := DeriveIdemKey("user-42", "sig-1", lot, at)
	if other := DeriveIdemKey("user-43", "sig-1", lot, at); other == base {
		t.Error("expected different user_id to produce a different key")
	}
	if other := DeriveIdemKey("user-42", "sig-2", lot, at); other == base {
		t.Error("expected different signal_id to produce a different key")
	}
	if other := DeriveIdemKey("user-42", "sig-1", decimal.NewFromFloat(0.20), at); other == base {
		t.Error("expected different lot to produce a different key")
	}
}

func TestEAInstanceFresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	ea := EAInstance{LastSeen: now.Add(-90 * time.Second)}
	if !ea.Fresh(now, FreshnessThreshold) {
		t.Error("expected 90s-old heartbeat to be fresh under 180s threshold")
	}

	stale := EAInstance{LastSeen: now.Add(-200 * time.Second)}
	if stale.Fresh(now, FreshnessThreshold) {
		t.Error("expected 200s-old heartbeat to be stale under 180s threshold")
	}
}
