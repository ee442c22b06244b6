package observability

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewRunID generates a unique identifier for one loop iteration of a component.
func NewRunID() string {
	return newID("run")
}

// NewFlowID generates a unique identifier for a full signal-to-confirmation
// lifecycle (signal generated → fire enqueued → routed → confirmed).
func NewFlowID() string {
	return newID("flow")
}

func newID(prefix string) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
