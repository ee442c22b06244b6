// Package errs holds the sentinel errors for the error taxonomy shared
// across components (spec §7): not type names, meanings. Components wrap
// one of these with fmt.Errorf("...: %w", ErrX) so callers can classify
// with errors.Is regardless of which component raised it.
package errs

import "errors"

var (
	// ErrValidationRejected means a payload violated schema or a
	// closed-value set. Surfaced to the caller synchronously; never
	// retried.
	ErrValidationRejected = errors.New("validation rejected")

	// ErrIdempotencyConflict means a duplicate submission was detected.
	// Not an error from the caller's perspective — callers that see this
	// should return the original resource, not a failure.
	ErrIdempotencyConflict = errors.New("idempotency conflict")

	// ErrRecipientStale means the target EA's heartbeat is older than the
	// freshness threshold. Surfaced; the fire is marked REJECTED.
	ErrRecipientStale = errors.New("recipient stale")

	// ErrTransientRemote means an HTTP/IPC/stream dependency was
	// temporarily unavailable. Retried with backoff; after the retry
	// budget is exhausted, escalated to the pager and moved to
	// dead-letter where applicable.
	ErrTransientRemote = errors.New("transient remote failure")

	// ErrCorrelationUnknown means a confirmation arrived for an unknown
	// fire_id. Logged and discarded; never retried.
	ErrCorrelationUnknown = errors.New("correlation unknown")

	// ErrPoisoned means a stream entry has failed repeatedly. Acked and
	// moved to the dead-letter stream after N attempts; alerts.
	ErrPoisoned = errors.New("poisoned entry")

	// ErrFatal means the state store or stream backend is unreachable
	// past the reconnect budget. The process should exit and let the
	// supervisor restart it.
	ErrFatal = errors.New("fatal dependency failure")
)
