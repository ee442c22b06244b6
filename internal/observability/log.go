package observability

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// LogEvent emits one structured JSON line. fields are merged on top of the
// run-info carried by ctx (run_id/task_id/flow_id/symbol), so callers don't
// need to thread those through by hand.
func LogEvent(ctx context.Context, level string, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.FlowID != "" {
		payload["flow_id"] = info.FlowID
	}
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.TaskID != "" {
		payload["task_id"] = info.TaskID
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}

	for key, value := range normalizeFields(fields) {
		payload[key] = value
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}

func normalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if err, ok := value.(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = value
	}
	return out
}

// Info is a convenience wrapper for the common case.
func Info(ctx context.Context, event string, fields map[string]any) {
	LogEvent(ctx, "info", event, fields)
}

// Warn is a convenience wrapper for recoverable problems (validation skip,
// correlation-unknown, transient retry).
func Warn(ctx context.Context, event string, fields map[string]any) {
	LogEvent(ctx, "warn", event, fields)
}

// Error is a convenience wrapper for failures an operator should see.
func Error(ctx context.Context, event string, fields map[string]any) {
	LogEvent(ctx, "error", event, fields)
}
