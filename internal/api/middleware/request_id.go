// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"github.com/ManuGH/cutiesync/internal/correlation"
	"github.com/ManuGH/cutiesync/internal/log"
	"github.com/google/uuid"
)

// RequestID adds a unique ID to every request. A well-formed inbound
// X-Request-ID is kept.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := correlation.NormalizeOrEmpty(r.Header.Get(correlation.HeaderRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(correlation.HeaderRequestID, reqID)
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
