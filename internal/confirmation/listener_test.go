package confirmation

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signalcore/internal/ipc"
	"signalcore/internal/model"
)

type fakePoller struct {
	payloads []ipc.ConfirmationPayload
}

func (f *fakePoller) Scan(handle func(ipc.ConfirmationPayload) error) error {
	for _, p := range f.payloads {
		if err := handle(p); err != nil {
			return err
		}
	}
	return nil
}

type fakeStore struct {
	fires         map[string]model.Fire
	confirmations map[string]bool
	statusUpdates []model.FireStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{fires: make(map[string]model.Fire), confirmations: make(map[string]bool)}
}

func (f *fakeStore) GetFireByID(ctx context.Context, fireID string) (model.Fire, error) {
	fire, ok := f.fires[fireID]
	if !ok {
		return model.Fire{}, errNotFound
	}
	return fire, nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

var errNotFound = notFoundErr{}

func (f *fakeStore) InsertConfirmation(ctx context.Context, c model.Confirmation) (bool, error) {
	key := c.FireID + "|" + strconv.Itoa(c.Sequence)
	if f.confirmations[key] {
		return false, nil
	}
	f.confirmations[key] = true
	return true, nil
}

func (f *fakeStore) UpdateFireStatus(ctx context.Context, fireID string, status model.FireStatus, ticket, rejectReason string, at time.Time) error {
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

type fakePublisher struct {
	eventTypes     []string
	userIDs        []string
	correlationIDs []string
}

func (f *fakePublisher) Publish(ctx context.Context, eventID, eventType, correlationID, userID string, data map[string]any) {
	f.eventTypes = append(f.eventTypes, eventType)
	f.userIDs = append(f.userIDs, userID)
	f.correlationIDs = append(f.correlationIDs, correlationID)
}

func newTestListener(fires map[string]model.Fire, payloads []ipc.ConfirmationPayload) (*Listener, *fakeStore, *fakePublisher) {
	st := newFakeStore()
	st.fires = fires
	pub := &fakePublisher{}
	l := &Listener{
		Poller:    &fakePoller{payloads: payloads},
		Store:     st,
		Events:    pub,
		sequences: make(map[string]int),
	}
	return l, st, pub
}

func TestPollAppliesFilledConfirmation(t *testing.T) {
	fire := model.Fire{FireID: "fire-1", UserID: "user-1", Status: model.FireStatusRouted}
	payload := ipc.ConfirmationPayload{FireID: "fire-1", Status: "FILLED", Ticket: "T1", Price: decimal.NewFromFloat(1.105), Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	l, st, pub := newTestListener(map[string]model.Fire{"fire-1": fire}, []ipc.ConfirmationPayload{payload})

	if err := l.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(st.statusUpdates) != 1 || st.statusUpdates[0] != model.FireStatusFilled {
		t.Errorf("status updates = %v, want [FILLED]", st.statusUpdates)
	}
	if len(pub.eventTypes) != 1 || pub.eventTypes[0] != string(model.EventTradeExecuted) {
		t.Errorf("events = %v, want [trade_executed]", pub.eventTypes)
	}
	if pub.userIDs[0] != "user-1" {
		t.Errorf("event user_id = %q, want user-1", pub.userIDs[0])
	}
}

func TestPollAppliesRejectedConfirmation(t *testing.T) {
	fire := model.Fire{FireID: "fire-2", UserID: "user-1", Status: model.FireStatusRouted}
	payload := ipc.ConfirmationPayload{FireID: "fire-2", Status: "REJECTED", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	l, st, _ := newTestListener(map[string]model.Fire{"fire-2": fire}, []ipc.ConfirmationPayload{payload})

	if err := l.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(st.statusUpdates) != 1 || st.statusUpdates[0] != model.FireStatusRejected {
		t.Errorf("status updates = %v, want [REJECTED]", st.statusUpdates)
	}
}

func TestPollPartialFillKeepsFireRouted(t *testing.T) {
	fire := model.Fire{FireID: "fire-3", UserID: "user-1", Status: model.FireStatusRouted}
	payload := ipc.ConfirmationPayload{FireID: "fire-3", Status: "PARTIAL", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	l, st, _ := newTestListener(map[string]model.Fire{"fire-3": fire}, []ipc.ConfirmationPayload{payload})

	if err := l.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(st.statusUpdates) != 1 || st.statusUpdates[0] != model.FireStatusRouted {
		t.Errorf("status updates = %v, want [ROUTED]", st.statusUpdates)
	}
}

func TestPollUsesSignalIDAsCorrelation(t *testing.T) {
	signalID := "signal-9"
	fire := model.Fire{FireID: "fire-4", UserID: "user-1", SignalID: &signalID, Status: model.FireStatusRouted}
	payload := ipc.ConfirmationPayload{FireID: "fire-4", Status: "FILLED", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	l, _, pub := newTestListener(map[string]model.Fire{"fire-4": fire}, []ipc.ConfirmationPayload{payload})

	if err := l.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(pub.eventTypes) != 1 {
		t.Fatalf("expected 1 event published")
	}
	if pub.correlationIDs[0] != signalID {
		t.Errorf("event correlation_id = %q, want %q", pub.correlationIDs[0], signalID)
	}
}

func TestPollMultipleConfirmationsForSameFireIncrementSequence(t *testing.T) {
	fire := model.Fire{FireID: "fire-5", UserID: "user-1", Status: model.FireStatusRouted}
	payloads := []ipc.ConfirmationPayload{
		{FireID: "fire-5", Status: "PARTIAL", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{FireID: "fire-5", Status: "FILLED", Timestamp: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)},
	}

	l, st, pub := newTestListener(map[string]model.Fire{"fire-5": fire}, payloads)

	if err := l.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(st.statusUpdates) != 2 {
		t.Fatalf("status updates = %v, want 2 entries", st.statusUpdates)
	}
	if len(pub.eventTypes) != 2 {
		t.Fatalf("events published = %d, want 2", len(pub.eventTypes))
	}
}

func TestPollUnknownFireSurfacesError(t *testing.T) {
	payload := ipc.ConfirmationPayload{FireID: "missing", Status: "FILLED"}
	l, _, _ := newTestListener(map[string]model.Fire{}, []ipc.ConfirmationPayload{payload})

	if err := l.Poll(context.Background()); err == nil {
		t.Fatal("expected Poll to surface the lookup error")
	}
}
