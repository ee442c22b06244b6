package middleware

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// CORSConfig holds CORS configuration for the Fire Command Router's
// operator-dashboard endpoints.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // preflight cache duration in seconds
}

// DefaultCORSConfig returns a development-friendly configuration.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			"X-Flow-ID",
		},
		AllowCredentials: true,
		MaxAge:           3600,
	}
}

// CORSConfigFromEnv builds a CORSConfig from environment variables.
func CORSConfigFromEnv() CORSConfig {
	config := DefaultCORSConfig()

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = parseCommaSeparated(origins)
	}
	if methods := os.Getenv("CORS_ALLOWED_METHODS"); methods != "" {
		config.AllowedMethods = parseCommaSeparated(methods)
	}
	if headers := os.Getenv("CORS_ALLOWED_HEADERS"); headers != "" {
		config.AllowedHeaders = parseCommaSeparated(headers)
	}
	if creds := os.Getenv("CORS_ALLOW_CREDENTIALS"); creds != "" {
		config.AllowCredentials = strings.ToLower(creds) == "true"
	}

	return config
}

// CORS returns a middleware that applies config's CORS headers.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && isOriginAllowed(origin, config.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			if config.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Type")
			next.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed reports whether origin is permitted by allowedOrigins,
// supporting "*" and simple "https://*.example.com" wildcard prefixes.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if strings.Contains(allowed, "*") {
			parts := strings.SplitN(allowed, "*", 2)
			prefix, suffix := parts[0], parts[1]
			if len(origin) >= len(prefix)+len(suffix) &&
				strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				return true
			}
		}
	}
	return false
}

func parseCommaSeparated(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
