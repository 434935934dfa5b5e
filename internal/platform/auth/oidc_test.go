package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type recordingVerifications struct {
	mu      sync.Mutex
	records []verificationRecord
}

type verificationRecord struct {
	kind    string
	success bool
	reason  string
}

func (m *recordingVerifications) RecordVerification(kind string, success bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, verificationRecord{kind: kind, success: success, reason: reason})
}

func (m *recordingVerifications) last(t *testing.T) verificationRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		t.Fatalf("expected a verification record")
	}
	return m.records[len(m.records)-1]
}

type jwksFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	mu       sync.Mutex
	requests int
}

func newJWKSFixture(t *testing.T, kid string) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &jwksFixture{key: key}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.requests++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func serviceClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"aud":            "https://storefront.internal",
		"iss":            "https://accounts.google.com",
		"sub":            "1122334455",
		"email":          "scheduler@vm-prod.iam.gserviceaccount.com",
		"email_verified": true,
		"exp":            float64(now.Add(time.Hour).Unix()),
		"iat":            float64(now.Unix()),
	}
}

func TestJWKSCacheReusesKeysUntilExpiry(t *testing.T) {
	fixture := newJWKSFixture(t, "key1")
	now := time.Unix(1_000_000, 0)
	cache := NewJWKSCache(fixture.server.URL, WithJWKSClock(func() time.Time { return now }))

	ctx := context.Background()
	got, err := cache.Key(ctx, "key1")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", got)
	}
	if _, err := cache.Key(ctx, "key1"); err != nil {
		t.Fatalf("Key second call: %v", err)
	}
	if fixture.fetches() != 1 {
		t.Fatalf("expected single fetch, got %d", fixture.fetches())
	}

	now = now.Add(2 * time.Hour)
	if _, err := cache.Key(ctx, "key1"); err != nil {
		t.Fatalf("Key after expiry: %v", err)
	}
	if fixture.fetches() != 2 {
		t.Fatalf("expected refetch after max-age, got %d", fixture.fetches())
	}
}

func TestJWKSCacheUnknownKidIsRateLimited(t *testing.T) {
	fixture := newJWKSFixture(t, "key1")
	now := time.Unix(1_000_000, 0)
	cache := NewJWKSCache(fixture.server.URL, WithJWKSClock(func() time.Time { return now }))

	ctx := context.Background()
	if _, err := cache.Key(ctx, "key1"); err != nil {
		t.Fatalf("Key: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := cache.Key(ctx, "rotated"); !errors.Is(err, ErrJWKSKeyNotFound) {
			t.Fatalf("expected key not found, got %v", err)
		}
	}
	if fixture.fetches() != 1 {
		t.Fatalf("expected unknown kid lookups within the interval to skip fetching, got %d", fixture.fetches())
	}

	now = now.Add(minJWKSRefetchInterval)
	_, _ = cache.Key(ctx, "rotated")
	if fixture.fetches() != 2 {
		t.Fatalf("expected refetch after interval, got %d", fixture.fetches())
	}
}

func TestParseMaxAge(t *testing.T) {
	cases := map[string]time.Duration{
		"public, max-age=600, must-revalidate": 10 * time.Minute,
		"MAX-AGE=60":                           time.Minute,
		"no-cache":                             0,
		"max-age=abc":                          0,
	}
	for header, want := range cases {
		if got := parseMaxAge(header); got != want {
			t.Errorf("%q: expected %s, got %s", header, want, got)
		}
	}
}

func TestRequireOIDC(t *testing.T) {
	fixture := newJWKSFixture(t, "svc-key")

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
		header func(token string) string
		status int
		reason string
	}{
		{name: "valid", status: http.StatusNoContent, reason: "ok"},
		{name: "missing token", header: func(string) string { return "" }, status: http.StatusUnauthorized, reason: "token_missing"},
		{name: "audience mismatch", mutate: func(c jwt.MapClaims) { c["aud"] = "https://other.internal" }, status: http.StatusUnauthorized, reason: "token_invalid"},
		{name: "issuer not allowed", mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }, status: http.StatusUnauthorized, reason: "token_invalid"},
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = float64(time.Now().Add(-time.Minute).Unix()) }, status: http.StatusUnauthorized, reason: "token_invalid"},
		{name: "unverified email", mutate: func(c jwt.MapClaims) { c["email_verified"] = false }, status: http.StatusUnauthorized, reason: "token_invalid"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := &recordingVerifications{}
			validator, err := NewOIDCValidator(NewJWKSCache(fixture.server.URL), "https://storefront.internal",
				[]string{"https://accounts.google.com"}, WithOIDCRecorder(recorder))
			if err != nil {
				t.Fatalf("NewOIDCValidator: %v", err)
			}

			claims := serviceClaims()
			if tc.mutate != nil {
				tc.mutate(claims)
			}
			header := "Bearer " + fixture.sign(t, "svc-key", claims)
			if tc.header != nil {
				header = tc.header(header)
			}

			handler := validator.RequireOIDC()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, ok := ServiceIdentityFromContext(r.Context())
				if !ok || identity.Email != "scheduler@vm-prod.iam.gserviceaccount.com" || identity.Subject != "1122334455" {
					t.Fatalf("unexpected service identity %+v", identity)
				}
				w.WriteHeader(http.StatusNoContent)
			}))

			rr := serve(t, handler, header)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			record := recorder.last(t)
			if record.kind != "oidc" || record.reason != tc.reason || record.success != (tc.reason == "ok") {
				t.Fatalf("unexpected verification record %+v", record)
			}
		})
	}
}

func TestRequireOIDCJWKSUnavailable(t *testing.T) {
	fixture := newJWKSFixture(t, "svc-key")
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(down.Close)

	recorder := &recordingVerifications{}
	validator, err := NewOIDCValidator(NewJWKSCache(down.URL), "https://storefront.internal", nil, WithOIDCRecorder(recorder))
	if err != nil {
		t.Fatalf("NewOIDCValidator: %v", err)
	}

	handler := validator.RequireOIDC()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run")
	}))
	rr := serve(t, handler, "Bearer "+fixture.sign(t, "svc-key", serviceClaims()))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := recorder.last(t).reason; got != "jwks_unavailable" {
		t.Fatalf("expected jwks_unavailable, got %s", got)
	}
}

func TestNewOIDCValidatorRequiresAudience(t *testing.T) {
	if _, err := NewOIDCValidator(NewJWKSCache("http://unused"), " ", nil); err == nil {
		t.Fatalf("expected error for empty audience")
	}
}
