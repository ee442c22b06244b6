package firerouter

import (
	"net/http"

	"signalcore/internal/auth"
)

// userIDFromRequest resolves the authenticated caller's user_id from the
// JWT claims auth.Validator.Middleware already placed in the request
// context. The router is always mounted behind that middleware in
// production; there is no path by which a request body can supply user_id.
func userIDFromRequest(r *http.Request) (string, bool) {
	return auth.UserIDFromContext(r.Context())
}
