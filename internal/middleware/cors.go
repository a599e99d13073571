// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cookiespooky/np-tma-backend/internal/handler/dto"
)

const (
	corsAllowedMethods = "POST, OPTIONS"
	corsAllowedHeaders = "Content-Type"
	corsMaxAge         = "86400"
)

// CORS returns a middleware that gates requests on a single allowed
// browser origin.
//
// Preflight OPTIONS requests short-circuit to 204 with CORS headers and
// bypass all other checks. For actual requests, a present Origin header
// that differs from the allowed origin is rejected with 403 before the
// body is read; an absent Origin header is tolerated so non-browser
// callers keep working.
//
// Every response carries Access-Control-Allow-Origin (the request origin
// when it matches, else the canonical allowed origin) and Vary: Origin.
func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowHeader := allowedOrigin
			originMatches := origin != "" && strings.EqualFold(origin, allowedOrigin)
			if originMatches {
				allowHeader = origin
			}

			w.Header().Set("Access-Control-Allow-Origin", allowHeader)
			w.Header().Add("Vary", "Origin")

			// Preflight bypasses origin and method gating entirely.
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if origin != "" && !originMatches {
				// Deliberately generic: foreign origins learn nothing
				// about the API.
				writeErrorEnvelope(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeErrorEnvelope writes the standard error envelope with the generic
// internal error code.
func writeErrorEnvelope(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{
		OK:        false,
		ErrorCode: dto.CodeInternalError,
		Message:   message,
	})
}
