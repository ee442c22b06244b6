// Package risk provides versioned, immutable lot-size policy loading for
// the Fire Command Router (spec §4.E). Loaded once at startup from a JSON
// config file; callers hold a read-only *Policy for the lifetime of the
// process. Adapted from the teacher's portfolio-level risk policy
// (libs/risk/policy.go) down to the single constraint this system actually
// enforces before enqueueing a fire: lot size bounds.
package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Policy is the immutable lot-size policy enforced at fire submission.
type Policy struct {
	MinLot decimal.Decimal `json:"min_lot"`
	MaxLot decimal.Decimal `json:"max_lot"`
	// LoadedFrom is the file path the policy was read from (empty for
	// defaults).
	LoadedFrom string `json:"-"`
	// LoadedAt is the wall-clock time the policy was loaded.
	LoadedAt time.Time `json:"-"`
	// Version is a short deterministic identifier of the loaded JSON, for
	// audit trail.
	Version string `json:"-"`
}

// LoadPolicy reads a JSON file and returns a validated Policy. Returns
// DefaultPolicy if path is empty or the file does not exist, so the system
// can start without a config file in development.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("risk: read policy file %q: %w", path, err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("risk: parse policy file %q: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("risk: invalid policy in %q: %w", path, err)
	}

	p.LoadedFrom = path
	p.LoadedAt = time.Now().UTC()
	p.Version = policyVersion(data)
	return &p, nil
}

// DefaultPolicy returns the conservative default used when no file exists:
// 0.01 to 10.0 lots.
func DefaultPolicy() *Policy {
	p := &Policy{
		MinLot:   decimal.NewFromFloat(0.01),
		MaxLot:   decimal.NewFromFloat(10.0),
		LoadedAt: time.Now().UTC(),
	}
	b, _ := json.Marshal(p)
	p.Version = policyVersion(b)
	return p
}

// Allows reports whether lot falls within [MinLot, MaxLot].
func (p *Policy) Allows(lot decimal.Decimal) bool {
	return lot.GreaterThanOrEqual(p.MinLot) && lot.LessThanOrEqual(p.MaxLot)
}

func (p *Policy) validate() error {
	if p.MinLot.IsNegative() {
		return fmt.Errorf("min_lot must be >= 0, got %s", p.MinLot)
	}
	if p.MaxLot.LessThanOrEqual(p.MinLot) {
		return fmt.Errorf("max_lot (%s) must be > min_lot (%s)", p.MaxLot, p.MinLot)
	}
	return nil
}

// policyVersion returns a short deterministic identifier for the policy
// JSON — not a security hash, an audit label.
func policyVersion(data []byte) string {
	h := uint64(14695981039346656037)
	for _, b := range data {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return fmt.Sprintf("%x", h)[:12]
}
