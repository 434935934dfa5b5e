package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerFallsBackToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger")
	}
	logger := zap.NewExample()
	if Logger(WithLogger(context.Background(), logger)) != logger {
		t.Fatalf("expected stored logger")
	}
	if Logger(WithLogger(context.Background(), nil)) != NoopLogger() {
		t.Fatalf("expected nil logger to be replaced")
	}
}

func TestPrincipalVisibleToParentContext(t *testing.T) {
	parent := WithPrincipalSlot(context.Background())
	child := context.WithValue(parent, struct{}{}, "downstream")

	SetPrincipal(child, Principal{ID: "user-1", Role: "customer"})

	got, ok := PrincipalFrom(parent)
	if !ok || got.ID != "user-1" || got.Role != "customer" {
		t.Fatalf("expected principal on parent, got %+v %v", got, ok)
	}
}

func TestSetPrincipalWithoutSlot(t *testing.T) {
	ctx := context.Background()
	SetPrincipal(ctx, Principal{ID: "user-1"})
	if _, ok := PrincipalFrom(ctx); ok {
		t.Fatalf("expected no principal without slot")
	}
}

func TestWithPrincipalSlotKeepsExisting(t *testing.T) {
	ctx := WithPrincipalSlot(context.Background())
	SetPrincipal(ctx, Principal{ID: "svc@example.iam.gserviceaccount.com", Role: "service"})
	again := WithPrincipalSlot(ctx)
	if got, ok := PrincipalFrom(again); !ok || got.Role != "service" {
		t.Fatalf("expected existing slot to be reused, got %+v", got)
	}
}
