package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultPolicyAllowsRange(t *testing.T) {
	p := DefaultPolicy()
	if !p.Allows(decimal.NewFromFloat(0.10)) {
		t.Error("expected 0.10 lot to be allowed by default policy")
	}
	if p.Allows(decimal.NewFromFloat(0.001)) {
		t.Error("expected below-min lot to be rejected")
	}
	if p.Allows(decimal.NewFromFloat(20)) {
		t.Error("expected above-max lot to be rejected")
	}
}

func TestLoadPolicyMissingFileReturnsDefault(t *testing.T) {
	p, err := LoadPolicy("/nonexistent/path/risk.json")
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p.MinLot.String() != DefaultPolicy().MinLot.String() {
		t.Errorf("expected default min lot, got %s", p.MinLot)
	}
}

func TestLoadPolicyEmptyPathReturnsDefault(t *testing.T) {
	p, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p.LoadedFrom != "" {
		t.Errorf("expected empty LoadedFrom for default policy, got %q", p.LoadedFrom)
	}
}

func TestPolicyVersionDeterministic(t *testing.T) {
	a := policyVersion([]byte("same input"))
	b := policyVersion([]byte("same input"))
	if a != b {
		t.Errorf("expected deterministic version, got %s != %s", a, b)
	}
	if c := policyVersion([]byte("different input")); c == a {
		t.Error("expected different input to produce a different version")
	}
}
