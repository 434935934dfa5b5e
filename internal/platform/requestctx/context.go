// Package requestctx carries per-request logging, trace and caller state through context.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type (
	loggerKey    struct{}
	traceKey     struct{}
	principalKey struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo identifies the request's span for log correlation.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Principal names the authenticated caller. Role is "service" for OIDC callers.
type Principal struct {
	ID   string
	Role string
}

// principalSlot is shared by every context derived from the request, so authentication that runs
// further down the chain is visible to middleware that wrapped it.
type principalSlot struct {
	mu        sync.Mutex
	principal Principal
	set       bool
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request logger or a shared no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return noopLogger
}

// NoopLogger is the logger Logger falls back to.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(ctx, traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithPrincipalSlot prepares ctx to receive the caller once authentication has run.
func WithPrincipalSlot(ctx context.Context) context.Context {
	if _, ok := ctx.Value(principalKey{}).(*principalSlot); ok {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, &principalSlot{})
}

// SetPrincipal records the caller. It is a no-op when no slot was prepared.
func SetPrincipal(ctx context.Context, principal Principal) {
	slot, ok := ctx.Value(principalKey{}).(*principalSlot)
	if !ok {
		return
	}
	slot.mu.Lock()
	slot.principal = principal
	slot.set = true
	slot.mu.Unlock()
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	slot, ok := ctx.Value(principalKey{}).(*principalSlot)
	if !ok {
		return Principal{}, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.principal, slot.set
}
