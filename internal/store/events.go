package store

import (
	"context"
	"encoding/json"
	"fmt"

	"signalcore/internal/model"
)

const insertEventQuery = `
	INSERT INTO events (event_id, event_type, timestamp, source, correlation_id, user_id, data)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (event_id) DO NOTHING
`

const insertSignalEventQuery = `
	INSERT INTO signal_events (event_id, signal_id, symbol, direction, confidence, pattern, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (event_id) DO NOTHING
`

const insertTradeEventQuery = `
	INSERT INTO trade_events (event_id, fire_id, target_uuid, symbol, status, ticket, fill_price, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (event_id) DO NOTHING
`

const insertHealthEventQuery = `
	INSERT INTO health_events (event_id, component, status, message, timestamp)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (event_id) DO NOTHING
`

// InsertObservedEvent writes event to the general events table and, for the
// three families the collector specializes (signal_generated,
// trade_executed, system_health), a denormalized row for analytics
// queries. Idempotent on event_id: safe to call more than once for the
// same event (spec §5, "duplicates tolerated; readers should dedupe by
// event_id"). Satisfies eventbus.EventStore.
func (r *Repository) InsertObservedEvent(ctx context.Context, event model.ObservedEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("store: marshal event data %s: %w", event.EventID, err)
	}

	if _, err := r.db.ExecContext(ctx, insertEventQuery,
		event.EventID, event.EventType, event.Timestamp, event.Source, nullIfEmpty(event.CorrelationID), nullIfEmpty(event.UserID), data); err != nil {
		return fmt.Errorf("store: insert event %s: %w", event.EventID, err)
	}

	switch event.EventType {
	case model.EventSignalGenerated:
		_, err = r.db.ExecContext(ctx, insertSignalEventQuery,
			event.EventID, str(event.Data["signal_id"]), str(event.Data["symbol"]), str(event.Data["direction"]), num(event.Data["confidence"]), str(event.Data["pattern"]), event.Timestamp)
	case model.EventTradeExecuted:
		_, err = r.db.ExecContext(ctx, insertTradeEventQuery,
			event.EventID, str(event.Data["fire_id"]), str(event.Data["target_uuid"]), str(event.Data["symbol"]), str(event.Data["status"]), str(event.Data["ticket"]), num(event.Data["fill_price"]), event.Timestamp)
	case model.EventSystemHealth:
		_, err = r.db.ExecContext(ctx, insertHealthEventQuery,
			event.EventID, str(event.Data["component"]), str(event.Data["status"]), str(event.Data["message"]), event.Timestamp)
	}
	if err != nil {
		return fmt.Errorf("store: insert specialized event %s: %w", event.EventID, err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
