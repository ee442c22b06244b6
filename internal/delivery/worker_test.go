package delivery

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signalcore/internal/resilience"
	"signalcore/internal/streams"
)

func TestDeliverAcksOn2xx(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	w := newTestWorker(server.URL)
	entry := testEntry("1-0", map[string]string{"signal_id": "sig-1", "symbol": "EURUSD"})

	if err := w.deliver(ctxBG(), entry); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if gotKey != "sig-1" {
		t.Errorf("expected Idempotency-Key=sig-1, got %q", gotKey)
	}
	if len(w.Stream.(*fakeDeliveryStream).acked) != 1 {
		t.Errorf("expected entry to be acked on 2xx response")
	}
}

func TestDeliverDoesNotAckOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	w := newTestWorker(server.URL)
	entry := testEntry("1-0", map[string]string{"signal_id": "sig-1"})

	if err := w.deliver(ctxBG(), entry); err == nil {
		t.Fatal("expected non-2xx response to return an error")
	}
	if len(w.Stream.(*fakeDeliveryStream).acked) != 0 {
		t.Error("expected entry not to be acked on non-2xx response")
	}
}

func TestReclaimStaleDeadLettersExhaustedEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := newTestWorker(server.URL)
	fake := w.Stream.(*fakeDeliveryStream)
	fake.pending = []streams.PendingEntry{{ID: "stuck-1", Consumer: "c1", RetryCount: int64(DefaultMaxAttempts + 5)}}
	fake.claimed = []streams.Entry{{ID: "stuck-1", Fields: map[string]string{"signal_id": "sig-stuck"}}}

	n, err := w.ReclaimStale(ctxBG())
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 entry handled, got %d", n)
	}
	if len(fake.dead) != 1 || fake.dead[0].ID != "stuck-1" {
		t.Errorf("expected stuck-1 to be dead-lettered, got %+v", fake.dead)
	}
}

func TestReclaimStaleRedeliversWithinBudget(t *testing.T) {
	var posts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := newTestWorker(server.URL)
	fake := w.Stream.(*fakeDeliveryStream)
	fake.pending = []streams.PendingEntry{{ID: "retry-1", Consumer: "c1", RetryCount: 1}}
	fake.claimed = []streams.Entry{{ID: "retry-1", Fields: map[string]string{"signal_id": "sig-retry"}}}

	n, err := w.ReclaimStale(ctxBG())
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if n != 1 || posts != 1 {
		t.Fatalf("expected 1 redelivery attempt, got n=%d posts=%d", n, posts)
	}
	if len(fake.dead) != 0 {
		t.Errorf("expected no dead-lettering within retry budget, got %+v", fake.dead)
	}
}

func newTestWorker(endpoint string) *Worker {
	return &Worker{
		Stream:        &fakeDeliveryStream{},
		Group:         "relay",
		Consumer:      "c1",
		Endpoint:      endpoint,
		DeadLetterKey: "signals.dead",
		HTTPClient:    &http.Client{Timeout: 2 * time.Second},
		Breaker:       resilience.NewCircuitBreaker(resilience.DefaultConfig("test")),
		PendingAge:    DefaultPendingAge,
		MaxAttempts:   DefaultMaxAttempts,
	}
}
