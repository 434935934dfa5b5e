package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/voltmart/storefront/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if got := sc.TraceID().String(); got != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", got)
	}
	if got := sc.SpanID().String(); got != "0000000000000001" {
		t.Fatalf("unexpected span id %s", got)
	}
	if !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("expected sampled remote span context")
	}

	for _, header := range []string{"", "abc", "105445aa7843bc8bf206b12000100000/zz", "105445aa7843bc8bf206b12000100000/0;o=1", "nothex/1"} {
		if _, ok := parseCloudTraceContext(header); ok {
			t.Errorf("expected %q to be rejected", header)
		}
	}
}

func TestFormatCloudTraceHeaderRoundTrip(t *testing.T) {
	header := "4bf92f3577b34da6a3ce929d0e0e4736/12345;o=0"
	sc, ok := parseCloudTraceContext(header)
	if !ok {
		t.Fatalf("parse failed")
	}
	if got := formatCloudTraceHeader(sc); got != header {
		t.Fatalf("expected %s, got %s", header, got)
	}
	if got := formatCloudTraceHeader(trace.SpanContext{}); got != "" {
		t.Fatalf("expected empty header for invalid context, got %s", got)
	}
}

func TestTraceMiddlewarePrefersTraceparent(t *testing.T) {
	var info requestctx.TraceInfo
	handler := TraceMiddleware("vm-dev")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = requestctx.Trace(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if info.ProjectID != "vm-dev" {
		t.Fatalf("expected project id on trace info, got %+v", info)
	}
	// Without an SDK provider the span inherits the remote context.
	if info.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected traceparent trace id, got %s", info.TraceID)
	}
	if !strings.HasPrefix(rr.Header().Get(cloudTraceHeader), "4bf92f3577b34da6a3ce929d0e0e4736/") {
		t.Fatalf("expected cloud trace response header, got %q", rr.Header().Get(cloudTraceHeader))
	}
}

func TestTraceMiddlewareFallsBackToCloudTraceHeader(t *testing.T) {
	var info requestctx.TraceInfo
	handler := TraceMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if info.TraceID != "105445aa7843bc8bf206b12000100000" || !info.Sampled {
		t.Fatalf("unexpected trace info %+v", info)
	}
}

func TestSanitizers(t *testing.T) {
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected root route, got %q", got)
	}
	if got := SanitizeUserID("user\n-1\x00"); got != "user-1" {
		t.Fatalf("expected control characters stripped, got %q", got)
	}
	if got := SanitizeUserID(strings.Repeat("é", 100)); len([]rune(got)) != 64 {
		t.Fatalf("expected truncation to 64 runes, got %d", len([]rune(got)))
	}
	if got := knownMethod("PROPFIND"); got != "_OTHER" {
		t.Fatalf("expected unknown method to collapse, got %s", got)
	}
	if got := knownMethod(http.MethodPatch); got != http.MethodPatch {
		t.Fatalf("expected PATCH to pass through, got %s", got)
	}
}

func TestServiceLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logEvent := ServiceLogger(zap.New(core).Named("orders"))

	logEvent(context.Background(), "order.placed", map[string]any{"orderId": "ord_1", "total": 1200})
	logEvent(context.Background(), "order.publish.failed", map[string]any{"error": errors.New("broker down")})

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].LoggerName != "orders" {
		t.Fatalf("unexpected first entry %+v", entries[0].Entry)
	}
	if entries[0].ContextMap()["orderId"] != "ord_1" {
		t.Fatalf("expected orderId field, got %v", entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for failed event, got %s", entries[1].Level)
	}
	if entries[1].ContextMap()["error"] != "broker down" {
		t.Fatalf("expected error field, got %v", entries[1].ContextMap())
	}
}

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.DebugLevel)
	reqCore, reqLogs := observer.New(zapcore.DebugLevel)

	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore).With(zap.String("requestId", "req-1")))
	ServiceLogger(zap.New(baseCore).Named("coins"))(ctx, "coins.redeemed", nil)

	if baseLogs.Len() != 0 {
		t.Fatalf("expected base logger unused")
	}
	entries := reqLogs.AllUntimed()
	if len(entries) != 1 || entries[0].ContextMap()["requestId"] != "req-1" || entries[0].LoggerName != "coins" {
		t.Fatalf("unexpected request-scoped entries %+v", entries)
	}
}

func TestRequestLoggerRecordsPrincipalSetDownstream(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	authenticate := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestctx.SetPrincipal(r.Context(), requestctx.Principal{ID: "user-1", Role: "customer"})
			next.ServeHTTP(w, r)
		})
	}
	handler := InjectLoggerMiddleware(zap.New(core))(
		RequestLoggerMiddleware("vm-dev")(
			authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
			})),
		),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))

	entries := logs.FilterMessage("request completed").AllUntimed()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != "user-1" || fields["role"] != "customer" {
		t.Fatalf("expected principal fields, got %v", fields)
	}
	if fields["status"] != int64(http.StatusCreated) {
		t.Fatalf("expected status 201, got %v", fields["status"])
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/coins", nil))

	if rr.Code != http.StatusInternalServerError || !strings.Contains(rr.Body.String(), "internal_server_error") {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged with fallback logger")
	}
}

func TestSeverityMapping(t *testing.T) {
	cases := map[zapcore.Level]string{
		zapcore.DebugLevel:  "DEBUG",
		zapcore.WarnLevel:   "WARNING",
		zapcore.ErrorLevel:  "ERROR",
		zapcore.DPanicLevel: "CRITICAL",
		zapcore.FatalLevel:  "EMERGENCY",
	}
	for level, want := range cases {
		if got := severity(level); got != want {
			t.Errorf("severity(%s) = %s, want %s", level, got, want)
		}
	}
}
