// Package middleware provides the ambient HTTP concerns shared by the Fire
// Command Router and any other HTTP-facing signalcore component: flow-id
// propagation, per-caller rate limiting, and CORS for browser-facing
// endpoints. Adapted from the teacher's libs/middleware package.
package middleware

import (
	"net/http"

	"signalcore/internal/observability"
)

const flowIDHeader = "X-Flow-ID"

// FlowID reads X-Flow-ID from the incoming request, generating one if
// absent, injects it into the request context, and echoes it back in the
// response so every log statement in the handler chain carries it.
func FlowID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flowID := r.Header.Get(flowIDHeader)
		if flowID == "" {
			flowID = observability.NewFlowID()
		}

		ctx := observability.WithFlowID(r.Context(), flowID)
		w.Header().Set(flowIDHeader, flowID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FlowIDFromRequest retrieves the flow_id from the request context, or ""
// if none was set.
func FlowIDFromRequest(r *http.Request) string {
	return observability.FlowIDFromContext(r.Context())
}
