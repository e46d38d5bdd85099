package middleware

import (
	"context"
	"net/http"

	"github.com/rs/xid"
)

// CorrelationIDHeader carries the id on requests and responses so callers
// and upstream proxies can stitch traces across services.
const CorrelationIDHeader = "X-Correlation-ID"

// The context key is the raw string so audit entries, which are built in a
// package with no import path to this one, can read the same value.
const correlationIDKey = "correlation_id"

// An inbound id longer than this is discarded as noise.
const maxCorrelationIDLen = 64

// CorrelationCtx returns the request's correlation id, or "" outside a
// request context.
func CorrelationCtx(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// CorrelationIDMiddleware adopts the caller's correlation id or assigns a
// fresh one, echoes it on the response and stores it in the context.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if id == "" || len(id) > maxCorrelationIDLen {
			id = xid.New().String()
		}
		w.Header().Set(CorrelationIDHeader, id)

		ctx := context.WithValue(r.Context(), correlationIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
