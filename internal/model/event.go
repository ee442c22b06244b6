package model

import "time"

// EventType is one of the closed set of eight observation-bus event types
// (spec §6).
type EventType string

const (
	EventSignalGenerated EventType = "signal_generated"
	EventFireCommand     EventType = "fire_command"
	EventTradeExecuted   EventType = "trade_executed"
	EventBalanceUpdate   EventType = "balance_update"
	EventSystemHealth    EventType = "system_health"
	EventUserAction      EventType = "user_action"
	EventMarketData      EventType = "market_data"
	EventPatternDetected EventType = "pattern_detected"
)

// ObservedEvent is a normalized lifecycle record published to and consumed
// from the observation bus (component H). Append-only; retention is
// time-based, enforced by the collector, not by this type.
type ObservedEvent struct {
	EventID       string          `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Data          map[string]any `json:"data"`
}
