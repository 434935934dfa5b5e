package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code codes.Code
		want Kind
	}{
		{codes.NotFound, KindNotFound},
		{codes.AlreadyExists, KindConflict},
		{codes.Aborted, KindConflict},
		{codes.FailedPrecondition, KindConflict},
		{codes.Unavailable, KindUnavailable},
		{codes.ResourceExhausted, KindUnavailable},
		{codes.PermissionDenied, KindUnknown},
	}
	for _, tc := range cases {
		err := WrapError("orders.get", status.Error(tc.code, "boom"))
		var repoErr *Error
		if !errors.As(err, &repoErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.code, err)
		}
		if repoErr.Kind != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.code, tc.want, repoErr.Kind)
		}
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", status.Error(codes.Canceled, "client gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if err := WrapError("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapErrorKeepsExistingClassification(t *testing.T) {
	inner := NotFound("", "no open alert")
	err := WrapError("inventoryAlerts.findOpen", inner)
	if err.Error() != "inventoryAlerts.findOpen: no open alert" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if inner.Error() != "no open alert" {
		t.Fatalf("wrapping must not mutate the original error, got %q", inner.Error())
	}

	tagged := Conflict("products.appendReview", "duplicate")
	if WrapError("tx", tagged) != tagged {
		t.Fatalf("expected already tagged error to be returned unchanged")
	}
}
