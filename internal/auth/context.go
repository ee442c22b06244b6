package auth

import "context"

type contextKey string

const claimsKey contextKey = "auth_claims"

func withClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the Claims stored by Middleware, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// UserIDFromContext returns the authenticated user_id. This is the ONLY
// source the Fire Command Router trusts for user identity — a fire
// request's JSON body never carries user_id, precisely so a client
// cannot submit fires on another user's behalf.
func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return "", false
	}
	return claims.UserID, true
}

// RoleFromContext returns the authenticated caller's role, if any.
func RoleFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return "", false
	}
	return claims.Role, true
}

// WithTestClaims injects a Claims carrying userID, bypassing token
// validation entirely. For tests of downstream handlers that only need
// UserIDFromContext to resolve — never call this outside a _test.go file.
func WithTestClaims(ctx context.Context, userID string) context.Context {
	return withClaims(ctx, &Claims{UserID: userID})
}
