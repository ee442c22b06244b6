package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FreshnessThreshold is the default age beyond which an EA instance is
// considered stale: eligible for alerting (and fire rejection), not
// deletion. See spec data model §3, EA Instance.
const FreshnessThreshold = 180 * time.Second

// EAInstance is a live broker-side execution agent bound to exactly one
// user.
type EAInstance struct {
	TargetUUID string          `json:"target_uuid"`
	UserID     string          `json:"user_id"`
	LastSeen   time.Time       `json:"last_seen"`
	Balance    decimal.Decimal `json:"balance"`
	Equity     decimal.Decimal `json:"equity"`
	// SymbolMap maps the canonical symbol (e.g. "EURUSD") to the broker's
	// local name for it (e.g. "EURUSD.m"), when they differ.
	SymbolMap map[string]string `json:"symbol_map,omitempty"`
}

// Fresh reports whether the instance has heartbeated within threshold of
// now.
func (e EAInstance) Fresh(now time.Time, threshold time.Duration) bool {
	return now.Sub(e.LastSeen) < threshold
}
