package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFlowIDGeneratedWhenAbsent(t *testing.T) {
	var captured string
	handler := FlowID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = FlowIDFromRequest(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if captured == "" {
		t.Error("expected a generated flow_id in the request context")
	}
	if w.Header().Get(flowIDHeader) != captured {
		t.Errorf("response header %s = %q, want %q", flowIDHeader, w.Header().Get(flowIDHeader), captured)
	}
}

func TestFlowIDPropagatedWhenPresent(t *testing.T) {
	var captured string
	handler := FlowID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = FlowIDFromRequest(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(flowIDHeader, "flow_existing_123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if captured != "flow_existing_123" {
		t.Errorf("captured flow_id = %q, want flow_existing_123", captured)
	}
}
