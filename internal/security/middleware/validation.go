package middleware

import (
	"log/slog"
	"net/http"
	"strings"
)

// ValidateJSONContentType rejects mutating requests whose body is not
// declared as JSON. Bodyless requests pass through.
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ct := r.Header.Get("Content-Type")
			if !strings.Contains(ct, "application/json") {
				log.Warn("invalid content type",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("content_type", ct),
				)
				http.Error(w, `{"success":false,"message":"Content-Type must be application/json"}`, http.StatusUnsupportedMediaType)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Markup characters are never legal in account UIDs, duration tokens or
// usernames, so any query value carrying one is rejected outright.
var forbiddenQueryChars = "<>\"'&"

// SanitizeInputs blocks path traversal and markup injection before a
// request can reach handlers that touch per-tenant directories on disk.
func SanitizeInputs(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
				log.Warn("suspicious path pattern detected", slog.String("path", r.URL.Path))
				http.Error(w, `{"success":false,"message":"invalid path"}`, http.StatusBadRequest)
				return
			}

			for key, values := range r.URL.Query() {
				for _, val := range values {
					if strings.ContainsAny(val, forbiddenQueryChars) {
						log.Warn("suspicious query input detected",
							slog.String("path", r.URL.Path),
							slog.String("param", key),
						)
						http.Error(w, `{"success":false,"message":"invalid characters in query"}`, http.StatusBadRequest)
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
