package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const paymentsKey = "projects/vm-prod/secrets/razorpay-key-secret/versions/latest"

func TestResolveCachesUntilTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()
	client.values[paymentsKey] = "rzp_secret_v1\n"
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	resolver, err := NewResolver(ctx,
		WithProject("vm-prod"),
		WithTTL(time.Minute),
		WithClock(func() time.Time { return now }),
		withAccessor(client),
	)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	defer resolver.Close()

	for i := 0; i < 2; i++ {
		got, err := resolver.ResolveSecret(ctx, "secret://razorpay-key-secret")
		if err != nil {
			t.Fatalf("ResolveSecret: %v", err)
		}
		if got != "rzp_secret_v1" {
			t.Fatalf("expected trimmed secret, got %q", got)
		}
	}
	if calls := client.calls(paymentsKey); calls != 1 {
		t.Fatalf("expected one remote access, got %d", calls)
	}

	client.values[paymentsKey] = "rzp_secret_v2"
	now = now.Add(time.Minute)
	got, err := resolver.ResolveSecret(ctx, "secret://razorpay-key-secret")
	if err != nil {
		t.Fatalf("ResolveSecret after expiry: %v", err)
	}
	if got != "rzp_secret_v2" || client.calls(paymentsKey) != 2 {
		t.Fatalf("expected refetch after ttl, got %q after %d calls", got, client.calls(paymentsKey))
	}
}

func TestResolveHonoursVersionAndProject(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()
	pinned := "projects/vm-shared/secrets/mailer-token/versions/3"
	client.values[pinned] = "token-v3"

	resolver, err := NewResolver(ctx, WithProject("vm-prod"), withAccessor(client))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	got, err := resolver.ResolveSecret(ctx, "secret://mailer-token?version=3&project=vm-shared")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "token-v3" {
		t.Fatalf("expected pinned version, got %q", got)
	}
}

func TestResolveFallsBackWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	path := writeFallback(t, "RAZORPAY_KEY_SECRET=local-secret\n")
	client := newFakeAccessor()
	client.errs[paymentsKey] = status.Error(codes.PermissionDenied, "denied")

	resolver, err := NewResolver(ctx, WithProject("vm-prod"), WithFallbackFile(path), withAccessor(client))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	got, err := resolver.ResolveSecret(ctx, "secret://razorpay-key-secret")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "local-secret" {
		t.Fatalf("expected fallback value, got %q", got)
	}
}

func TestResolveDoesNotFallBackOnNotFound(t *testing.T) {
	ctx := context.Background()
	path := writeFallback(t, "RAZORPAY_KEY_SECRET=local-secret\n")
	client := newFakeAccessor()

	resolver, err := NewResolver(ctx, WithProject("vm-prod"), WithFallbackFile(path), withAccessor(client))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	_, err = resolver.ResolveSecret(ctx, "secret://razorpay-key-secret")
	if status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Fatalf("expected not found from secret manager, got %v", err)
	}
}

func TestResolveFallbackOnlyWithoutClient(t *testing.T) {
	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (versionAccessor, error) {
		return nil, errors.New("no default credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	ctx := context.Background()
	path := writeFallback(t, "MAILER_TOKEN=\"from-file\"\n")

	resolver, err := NewResolver(ctx, WithProject("vm-dev"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	got, err := resolver.ResolveSecret(ctx, "secret://mailer-token")
	if err != nil || got != "from-file" {
		t.Fatalf("expected fallback value, got %q, %v", got, err)
	}

	_, err = resolver.ResolveSecret(ctx, "secret://unknown-secret")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseReferenceRejectsMalformed(t *testing.T) {
	for _, ref := range []string{"", "https://example.com/x", "secret://", "secret://a/b"} {
		if _, err := parseReference(ref); !errors.Is(err, ErrInvalidReference) {
			t.Errorf("%q: expected ErrInvalidReference, got %v", ref, err)
		}
	}
}

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	return path
}

type fakeAccessor struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	count  map[string]int
}

func newFakeAccessor() *fakeAccessor {
	return &fakeAccessor{values: map[string]string{}, errs: map[string]error{}, count: map[string]int{}}
}

func (f *fakeAccessor) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count[req.GetName()]++
	if err := f.errs[req.GetName()]; err != nil {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (f *fakeAccessor) Close() error { return nil }

func (f *fakeAccessor) calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count[name]
}
