// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package middleware provides HTTP middleware shared by all API routes.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tunebloom/tunebloom/internal/logging"
)

// RequestID generates a unique ID for each request (honoring an upstream
// X-Request-ID when present) and propagates it through the response header
// and the request context for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
