package eventbus

import (
	"time"

	"signalcore/internal/model"
)

// Envelope is the wire shape published on the observation bus, per spec
// §5: "{event_id, event_type, timestamp, source, correlation_id?, user_id?,
// data}".
type Envelope struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	Timestamp     time.Time      `json:"timestamp"`
	Source        string         `json:"source"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Data          map[string]any `json:"data"`
}

// ToObservedEvent converts the wire envelope to the domain model used by
// the collector's store writes.
func (e Envelope) ToObservedEvent() model.ObservedEvent {
	return model.ObservedEvent{
		EventID:       e.EventID,
		EventType:     model.EventType(e.EventType),
		Timestamp:     e.Timestamp,
		Source:        e.Source,
		CorrelationID: e.CorrelationID,
		UserID:        e.UserID,
		Data:          e.Data,
	}
}
