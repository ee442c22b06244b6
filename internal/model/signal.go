package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a signal or fire.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Signal is a trading decision produced by the upstream strategy ("Elite
// Guard"). It is created once by the ingest bridge and never mutated again;
// everything downstream treats it as a value.
type Signal struct {
	SignalID   string          `json:"signal_id"`
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Confidence int             `json:"confidence"`
	Pattern    string          `json:"pattern,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
