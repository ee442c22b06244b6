package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConfirmationStatus is the broker-reported outcome of a fire attempt.
type ConfirmationStatus string

const (
	ConfirmationFilled   ConfirmationStatus = "FILLED"
	ConfirmationRejected ConfirmationStatus = "REJECTED"
	ConfirmationPartial  ConfirmationStatus = "PARTIAL"
)

// Confirmation is an asynchronous reply from the broker side, correlated to
// a Fire by FireID. Sequence increases across partial/final fills for the
// same fire; the pair (FireID, Sequence) is the identity.
type Confirmation struct {
	FireID          string             `json:"fire_id"`
	Sequence        int                `json:"sequence"`
	Status          ConfirmationStatus `json:"status"`
	Ticket          string             `json:"ticket,omitempty"`
	FillPrice       decimal.Decimal    `json:"fill_price"`
	FillVolume      decimal.Decimal    `json:"fill_volume"`
	BrokerTimestamp time.Time          `json:"broker_timestamp"`
	// Final marks the last confirmation expected for a fire (a full fill or
	// a terminal reject). Resolves the open question of how a partial-fill
	// sequence announces its own end: an explicit flag rather than inferring
	// from status alone, since PARTIAL can itself be final under a broker
	// that never sends a closing FILLED record.
	Final bool `json:"final"`
}
