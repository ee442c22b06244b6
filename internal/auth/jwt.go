// Package auth validates JWTs presented by the web layer to the Fire
// Command Router, extracting user_id server-side so a caller can never
// supply it directly (spec §4.E, "resolve target_uuid server-side").
// Adapted from the teacher's libs/auth/jwt.go; token issuance
// (GenerateToken/RefreshToken) is dropped since this system only verifies
// tokens minted elsewhere.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrMissingToken      = errors.New("missing authorization token")
	ErrInvalidAuthHeader = errors.New("invalid authorization header format")
)

// Claims is the JWT claims structure the web layer mints tokens with.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds JWT validation configuration.
type Config struct {
	Secret []byte
	Issuer string
}

// Validator validates bearer tokens against Config.
type Validator struct {
	config Config
}

// NewValidator returns a Validator. Secret must be non-empty.
func NewValidator(config Config) (*Validator, error) {
	if len(config.Secret) == 0 {
		return nil, errors.New("auth: JWT secret cannot be empty")
	}
	if config.Issuer == "" {
		config.Issuer = "signalcore"
	}
	return &Validator{config: config}, nil
}

// NewValidatorFromEnv builds a Validator from the JWT_SECRET environment
// variable.
func NewValidatorFromEnv() (*Validator, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("auth: JWT_SECRET environment variable is required")
	}
	return NewValidator(Config{Secret: []byte(secret)})
}

// ValidateToken parses and validates tokenString, returning its claims.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// ExtractTokenFromRequest reads a "Bearer <token>" Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrInvalidAuthHeader
	}
	return parts[1], nil
}

// Middleware validates the bearer token on every request and stores its
// claims in the request context for downstream handlers.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractTokenFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		claims, err := v.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		ctx := withClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
