package firerouter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signalcore/internal/auth"
	"signalcore/internal/clock"
	"signalcore/internal/model"
	"signalcore/internal/risk"
	"signalcore/internal/store"
)

type fakeStore struct {
	ea           model.EAInstance
	eaErr        error
	fires        map[string]model.Fire // key: userID|idemKey
	insertErr    error
	forceDup     bool
	updateCalled bool
}

func newFakeStore(ea model.EAInstance) *fakeStore {
	return &fakeStore{ea: ea, fires: make(map[string]model.Fire)}
}

func (f *fakeStore) GetEAInstanceByUserID(ctx context.Context, userID string) (model.EAInstance, error) {
	if f.eaErr != nil {
		return model.EAInstance{}, f.eaErr
	}
	return f.ea, nil
}

func (f *fakeStore) InsertFire(ctx context.Context, fire model.Fire) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	key := fire.UserID + "|" + fire.IdemKey
	if _, exists := f.fires[key]; exists || f.forceDup {
		return false, nil
	}
	f.fires[key] = fire
	return true, nil
}

func (f *fakeStore) GetFireByIdemKey(ctx context.Context, userID, idemKey string) (model.Fire, error) {
	fire, ok := f.fires[userID+"|"+idemKey]
	if !ok {
		return model.Fire{}, store.ErrNotFound
	}
	return fire, nil
}

func (f *fakeStore) UpdateFireStatus(ctx context.Context, fireID string, status model.FireStatus, ticket, rejectReason string, at time.Time) error {
	f.updateCalled = true
	return nil
}

type fakeStreamAppender struct {
	appended []map[string]string
}

func (f *fakeStreamAppender) Append(ctx context.Context, fields map[string]string) (string, error) {
	f.appended = append(f.appended, fields)
	return "1-0", nil
}

type fakeIPC struct {
	written []model.Fire
}

func (f *fakeIPC) Write(fire model.Fire) error {
	f.written = append(f.written, fire)
	return nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) Publish(ctx context.Context, eventID, eventType, correlationID, userID string, data map[string]any) {
	f.events = append(f.events, eventType)
}

func newTestServer(mode Mode, ea model.EAInstance) (*Server, *fakeStore, *fakeStreamAppender, *fakeIPC, *fakePublisher) {
	st := newFakeStore(ea)
	stream := &fakeStreamAppender{}
	ipc := &fakeIPC{}
	pub := &fakePublisher{}

	s := &Server{
		Store:   st,
		Streams: func(targetUUID string) streamAppender { return stream },
		IPC:     ipc,
		Events:  pub,
		Policy:  risk.DefaultPolicy(),
		Mode:    mode,
		Clock:   clock.Fixed{T: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s, st, stream, ipc, pub
}

func freshEA() model.EAInstance {
	return model.EAInstance{
		TargetUUID: "target-1",
		UserID:     "user-1",
		LastSeen:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Balance:    decimal.NewFromInt(1000),
		Equity:     decimal.NewFromInt(1000),
	}
}

func postFire(t *testing.T, s *Server, userID string, req FireRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/fire", bytes.NewReader(body))
	ctx := auth.WithTestClaims(httpReq.Context(), userID)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httpReq.WithContext(ctx))
	return w
}

func TestSubmitEnqueuesInRedisMode(t *testing.T) {
	s, st, stream, ipc, pub := newTestServer(ModeRedis, freshEA())

	w := postFire(t, s, "user-1", FireRequest{
		Symbol: "EURUSD", Direction: "BUY",
		Lot: decimal.NewFromFloat(0.1), SL: decimal.NewFromFloat(1.05), TP: decimal.NewFromFloat(1.10),
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp FireResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != string(model.FireStatusEnqueued) {
		t.Errorf("status = %q, want ENQUEUED", resp.Status)
	}
	if len(stream.appended) != 1 {
		t.Errorf("expected 1 stream append, got %d", len(stream.appended))
	}
	if len(ipc.written) != 0 {
		t.Errorf("redis mode should not write IPC, got %d writes", len(ipc.written))
	}
	if !st.updateCalled {
		t.Error("expected UpdateFireStatus to be called")
	}
	if len(pub.events) != 1 {
		t.Errorf("expected 1 observation event published, got %d", len(pub.events))
	}
}

func TestSubmitShadowModeWritesBoth(t *testing.T) {
	s, _, stream, ipc, _ := newTestServer(ModeShadow, freshEA())

	w := postFire(t, s, "user-1", FireRequest{
		Symbol: "EURUSD", Direction: "SELL",
		Lot: decimal.NewFromFloat(0.1), SL: decimal.NewFromFloat(1.05), TP: decimal.NewFromFloat(1.10),
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(stream.appended) != 1 || len(ipc.written) != 1 {
		t.Errorf("expected both stream and IPC writes in shadow mode, got stream=%d ipc=%d", len(stream.appended), len(ipc.written))
	}
}

func TestSubmitLegacyModeSkipsStream(t *testing.T) {
	s, _, stream, ipc, _ := newTestServer(ModeLegacy, freshEA())

	w := postFire(t, s, "user-1", FireRequest{
		Symbol: "EURUSD", Direction: "BUY",
		Lot: decimal.NewFromFloat(0.1), SL: decimal.NewFromFloat(1.05), TP: decimal.NewFromFloat(1.10),
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(stream.appended) != 0 {
		t.Errorf("legacy mode should not append to stream, got %d", len(stream.appended))
	}
	if len(ipc.written) != 1 {
		t.Errorf("legacy mode should write IPC, got %d", len(ipc.written))
	}
}

func TestSubmitDryRunSkipsDispatch(t *testing.T) {
	s, _, stream, ipc, pub := newTestServer(ModeRedis, freshEA())

	w := postFire(t, s, "user-1", FireRequest{
		Symbol: "EURUSD", Direction: "BUY", DryRun: true,
		Lot: decimal.NewFromFloat(0.1), SL: decimal.NewFromFloat(1.05), TP: decimal.NewFromFloat(1.10),
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(stream.appended) != 0 || len(ipc.written) != 0 {
		t.Error("dry_run must not dispatch to either path")
	}
	if len(pub.events) != 1 {
		t.Errorf("dry_run should still publish an observation event, got %d", len(pub.events))
	}
}

func TestSubmitDuplicateIdemKeyReturnsDeduplicated(t *testing.T) {
	s, _, stream, _, _ := newTestServer(ModeRedis, freshEA())

	req := FireRequest{
		Symbol: "EURUSD", Direction: "BUY", IdemKey: "fixed-key",
		Lot: decimal.NewFromFloat(0.1), SL: decimal.NewFromFloat(1.05), TP: decimal.NewFromFloat(1.10),
	}
	w1 := postFire(t, s, "user-1", req)
	if w1.Code != http.StatusAccepted {
		t.Fatalf("first submission status = %d, body = %s", w1.Code, w1.Body.String())
	}

	w2 := postFire(t, s, "user-1", req)
	if w2.Code != http.StatusOK {
		t.Fatalf("second submission status = %d, body = %s", w2.Code, w2.Body.String())
	}
	var resp FireResponse
	json.Unmarshal(w2.Body.Bytes(), &resp)
	if resp.Status != string(model.FireStatusDeduplicated) {
		t.Errorf("status = %q, want deduplicated", resp.Status)
	}
	if len(stream.appended) != 1 {
		t.Errorf("duplicate submission must not append a second stream entry, got %d", len(stream.appended))
	}
}

func TestSubmitRejectsForbiddenSymbol(t *testing.T) {
	s, _, _, _, _ := newTestServer(ModeRedis, freshEA())

	w := postFire(t, s, "user-1", FireRequest{
		Symbol: "XAUUSD", Direction: "BUY",
		Lot: decimal.NewFromFloat(0.1), SL: decimal.NewFromFloat(1.05), TP: decimal.NewFromFloat(1.10),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSubmitRejectsStaleEA(t *testing.T) {
	staleEA := freshEA()
	staleEA.LastSeen = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _, _, _, _ := newTestServer(ModeRedis, staleEA)

	w := postFire(t, s, "user-1", FireRequest{
		Symbol: "EURUSD", Direction: "BUY",
		Lot: decimal.NewFromFloat(0.1), SL: decimal.NewFromFloat(1.05), TP: decimal.NewFromFloat(1.10),
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestSubmitRejectsOutOfPolicyLot(t *testing.T) {
	s, _, _, _, _ := newTestServer(ModeRedis, freshEA())

	w := postFire(t, s, "user-1", FireRequest{
		Symbol: "EURUSD", Direction: "BUY",
		Lot: decimal.NewFromFloat(100), SL: decimal.NewFromFloat(1.05), TP: decimal.NewFromFloat(1.10),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleFireRejectsUnauthenticated(t *testing.T) {
	s, _, _, _, _ := newTestServer(ModeRedis, freshEA())

	body, _ := json.Marshal(FireRequest{Symbol: "EURUSD", Direction: "BUY"})
	req := httptest.NewRequest(http.MethodPost, "/fire", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
