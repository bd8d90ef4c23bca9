package util

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestIDPropagatesIncomingHeader(t *testing.T) {
	const incoming = "req-incoming-123"
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromRequest(r); got != incoming {
			t.Fatalf("unexpected request id in context: got %q want %q", got, incoming)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", incoming)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != incoming {
		t.Fatalf("unexpected response request id: got %q want %q", got, incoming)
	}
}

func TestWithRequestIDGeneratesWhenMissingOrOversized(t *testing.T) {
	for _, incoming := range []string{"", strings.Repeat("x", 200)} {
		handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := RequestIDFromRequest(r); got == "" || got == incoming {
				t.Fatalf("expected generated request id in context, got %q", got)
			}
		}))
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		if incoming != "" {
			req.Header.Set("X-Request-Id", incoming)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-Id"); got == "" || got == incoming {
			t.Fatalf("expected generated request id header, got %q", got)
		}
	}
}

func TestRequestLogIncludesTenant(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	initLogger(&buf, "info", "json")
	defer slog.SetDefault(prev)

	h := WithRequestID(WithRequestLog("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRequestTenant(r.Context(), "tenant-1")
		w.WriteHeader(http.StatusCreated)
	})))
	req := httptest.NewRequest(http.MethodPost, "/api/calls", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode log record %q: %v", buf.String(), err)
	}
	if record["msg"] != "http_request" || record["tenant_id"] != "tenant-1" || record["status"] != float64(201) {
		t.Fatalf("unexpected log record %+v", record)
	}
	if record["request_id"] == "" {
		t.Fatalf("expected request id in log record")
	}
}

func TestLoggerFromContextFallsBackToDefault(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
