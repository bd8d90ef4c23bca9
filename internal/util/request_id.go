package util

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

type requestIDContextKey string

const (
	requestIDHeader = "X-Request-Id"
	requestIDCtxKey = requestIDContextKey("request_id")
	requestMetaKey  = requestIDContextKey("request_meta")
)

// requestMeta carries values resolved deeper in the handler chain back up to
// the request logger.
type requestMeta struct {
	mu       sync.Mutex
	tenantID string
}

// WithRequestID propagates an incoming request id or generates one when absent.
// The id is set on the response header and the request context, together with
// a child logger carrying "request_id" (see LoggerFromContext).
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = NewID()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDCtxKey, requestID)
		ctx = context.WithValue(ctx, requestMetaKey, &requestMeta{})
		ctx = ContextWithLogger(ctx, LoggerFromContext(r.Context()).With("request_id", requestID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns request id from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// RequestIDFromRequest returns request id from request context.
func RequestIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	return RequestIDFromContext(r.Context())
}

// SetRequestTenant records the resolved tenant so the request log can include it.
func SetRequestTenant(ctx context.Context, tenantID string) {
	meta, ok := ctx.Value(requestMetaKey).(*requestMeta)
	if !ok || meta == nil {
		return
	}
	meta.mu.Lock()
	meta.tenantID = tenantID
	meta.mu.Unlock()
}

// RequestTenant returns the tenant recorded with SetRequestTenant.
func RequestTenant(ctx context.Context) string {
	meta, ok := ctx.Value(requestMetaKey).(*requestMeta)
	if !ok || meta == nil {
		return ""
	}
	meta.mu.Lock()
	defer meta.mu.Unlock()
	return meta.tenantID
}
