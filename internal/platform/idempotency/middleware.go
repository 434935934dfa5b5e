package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voltmart/storefront/internal/platform/auth"
	"github.com/voltmart/storefront/internal/platform/httpx"
	"github.com/voltmart/storefront/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
)

var (
	errKeyRequired = httpx.NewError("idempotency_key_required", "missing idempotency key header", http.StatusBadRequest)
	errKeyTooLong  = httpx.NewError("invalid_idempotency_key", "idempotency key is too long", http.StatusBadRequest)
	errUnreadable  = httpx.NewError("invalid_body", "unable to read request body", http.StatusBadRequest)
	errKeyReused   = httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict)
	errInFlight    = httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict)
	errStoreDown   = httpx.NewError("unavailable", "unable to process idempotency key", http.StatusServiceUnavailable)
)

type keyContextKey struct{}

// KeyFromContext returns the client supplied idempotency key of the current request.
func KeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(keyContextKey{}).(string)
	return key
}

type settings struct {
	header   string
	ttl      time.Duration
	required bool
	now      func() time.Time
	logger   *zap.Logger
}

type MiddlewareOption func(*settings)

func WithHeader(name string) MiddlewareOption {
	return func(s *settings) {
		if name = strings.TrimSpace(name); name != "" {
			s.header = name
		}
	}
}

// WithTTL sets how long completed responses stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRequiredKey rejects requests without a key instead of passing them through.
func WithRequiredKey() MiddlewareOption {
	return func(s *settings) { s.required = true }
}

// WithLogger pins the logger for store failures. Without it the request logger is used.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(s *settings) { s.logger = logger }
}

func WithClock(now func() time.Time) MiddlewareOption {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// Middleware replays the stored response when a caller repeats a key. Keys are scoped per caller.
// 5xx responses are not stored so the client can retry with the same key.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	s := settings{header: defaultHeaderName, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return &guard{settings: s, store: store, next: next}
	}
}

type guard struct {
	settings
	store Store
	next  http.Handler
}

// attempt is one keyed request: its scoped store key and request fingerprint.
type attempt struct {
	key         string
	scoped      string
	fingerprint string
}

func (g *guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(g.header))
	switch {
	case key == "" && g.required:
		httpx.WriteError(ctx, w, errKeyRequired)
		return
	case key == "":
		g.next.ServeHTTP(w, r)
		return
	case len(key) > maxKeyLength:
		httpx.WriteError(ctx, w, errKeyTooLong)
		return
	}

	body, err := bufferBody(r)
	if err != nil {
		httpx.WriteError(ctx, w, errUnreadable)
		return
	}
	caller := callerOf(ctx)
	a := attempt{key: key, scoped: caller + "|" + key, fingerprint: fingerprint(r, body, caller)}

	reservation, err := g.store.Reserve(ctx, a.scoped, a.fingerprint, g.now().UTC(), g.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		httpx.WriteError(ctx, w, errKeyReused)
		return
	case err != nil:
		g.log(ctx).Error("idempotency reserve failed", zap.Error(err))
		httpx.WriteError(ctx, w, errStoreDown)
		return
	}
	switch reservation.State {
	case ReservationStateCompleted:
		replay(w, reservation.Record)
		return
	case ReservationStatePending:
		httpx.WriteError(ctx, w, errInFlight)
		return
	}

	buf := &bufferedResponse{header: make(http.Header)}
	g.next.ServeHTTP(buf, r.WithContext(context.WithValue(ctx, keyContextKey{}, key)))
	g.settle(ctx, a, buf)
	buf.writeTo(w)
}

// settle stores the outcome or frees the key. The handler's side effects are already committed,
// so a failed save only costs replayability.
func (g *guard) settle(ctx context.Context, a attempt, buf *bufferedResponse) {
	logger := g.log(ctx)
	if buf.statusCode() < http.StatusInternalServerError {
		resp := Response{Status: buf.statusCode(), Headers: buf.header, Body: buf.body.Bytes()}
		err := g.store.SaveResponse(ctx, a.scoped, a.fingerprint, resp, g.now().UTC(), g.ttl)
		if err == nil {
			return
		}
		logger.Error("idempotency save failed", zap.Error(err))
	}
	if err := g.store.Release(ctx, a.scoped, a.fingerprint); err != nil {
		logger.Warn("idempotency release failed", zap.Error(err))
	}
}

func (g *guard) log(ctx context.Context) *zap.Logger {
	if g.logger != nil {
		return g.logger
	}
	return requestctx.Logger(ctx)
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// fingerprint identifies the request a key was first used with.
func fingerprint(r *http.Request, body []byte, caller string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteByte('|')
	b.WriteString(r.URL.Path)
	b.WriteByte('|')
	b.WriteString(r.URL.RawQuery)
	b.WriteByte('|')
	b.WriteString(caller)
	if len(body) > 0 {
		b.WriteByte('|')
		b.WriteString(sha256Hex(body))
	}
	return sha256Hex([]byte(b.String()))
}

func callerOf(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return identity.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc != nil && svc.Subject != "" {
		return "svc:" + svc.Subject
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name, values := range record.ResponseHeaders {
		header[name] = append(header[name], values...)
	}
	header.Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

// bufferedResponse holds the handler output until the outcome is stored.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.WriteHeader(http.StatusOK)
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedResponse) writeTo(w http.ResponseWriter) {
	for name, values := range b.header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.WriteHeader(b.statusCode())
	_, _ = w.Write(b.body.Bytes())
}
