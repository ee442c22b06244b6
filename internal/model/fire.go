package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FireStatus is the fire status machine:
// PENDING -> ENQUEUED -> ROUTED -> FILLED | REJECTED | CANCELLED.
// Anything other than the three terminal states is subject to the
// stuck-fire watchdog (see internal/watchdog).
type FireStatus string

const (
	FireStatusPending      FireStatus = "PENDING"
	FireStatusEnqueued     FireStatus = "ENQUEUED"
	FireStatusRouted       FireStatus = "ROUTED"
	FireStatusFilled       FireStatus = "FILLED"
	FireStatusRejected     FireStatus = "REJECTED"
	FireStatusCancelled    FireStatus = "CANCELLED"
	FireStatusDeduplicated FireStatus = "deduplicated" // returned to caller only, never persisted
)

// Terminal reports whether status is one of the three terminal states that
// exempt a fire from the stuck-fire watchdog.
func (s FireStatus) Terminal() bool {
	switch s {
	case FireStatusFilled, FireStatusRejected, FireStatusCancelled:
		return true
	default:
		return false
	}
}

// Fire is a per-user request to execute a signal (or a manual trade) against
// a specific EA.
type Fire struct {
	FireID     string          `json:"fire_id"`
	IdemKey    string          `json:"idem_key"`
	UserID     string          `json:"user_id"`
	SignalID   *string         `json:"signal_id,omitempty"`
	TargetUUID string          `json:"target_uuid"`
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	Lot        decimal.Decimal `json:"lot"`
	StopLoss   decimal.Decimal `json:"sl"`
	TakeProfit decimal.Decimal `json:"tp"`
	Comment    string          `json:"comment,omitempty"`
	Status     FireStatus      `json:"status"`
	Ticket     string          `json:"ticket,omitempty"`
	DryRun     bool            `json:"dry_run,omitempty"`
	RejectReason string        `json:"reject_reason,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// idempotencyBucketWidth is the rounding granularity applied to the
// timestamp component of a derived idem_key, so that two fires submitted a
// few milliseconds apart for the same user/signal/lot still collide into
// the same key. See spec data model §3, Fire.idem_key.
const idempotencyBucketWidth = 5 * time.Second

// DeriveIdemKey computes hash(user_id, signal_id, lot, ts_bucket) for a fire
// that did not supply its own idem_key. signalID may be empty for manual
// fires (fires not tied to a Signal).
func DeriveIdemKey(userID, signalID string, lot decimal.Decimal, at time.Time) string {
	bucket := at.UTC().Truncate(idempotencyBucketWidth).Unix()
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", userID, signalID, lot.String(), bucket)
	return hex.EncodeToString(h.Sum(nil))
}
