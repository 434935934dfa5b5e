package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestNewRouterProbes(t *testing.T) {
	router := NewRouter()

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%s: expected application/json, got %s", path, ct)
		}
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected metrics unmounted without handler, got %d", rr.Code)
	}
}

func TestNewRouterMountsGroups(t *testing.T) {
	api := func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	}
	internal := func(r chi.Router) {
		r.Post("/jobs/noop", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	}
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# HELP up\n"))
	})

	router := NewRouter(
		WithAPIRoutes(api),
		WithInternalRoutes(internal),
		WithInternalMiddlewares(guard),
		WithMetricsHandler(metrics),
	)

	cases := []struct {
		method string
		path   string
		auth   bool
		status int
	}{
		{http.MethodGet, "/api/v1/ping", false, http.StatusNoContent},
		{http.MethodPost, "/internal/jobs/noop", false, http.StatusUnauthorized},
		{http.MethodPost, "/internal/jobs/noop", true, http.StatusAccepted},
		{http.MethodGet, "/metrics", false, http.StatusOK},
		{http.MethodGet, "/api/v1/ping/extra", false, http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.auth {
			req.Header.Set("Authorization", "Bearer svc")
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, rr.Code)
		}
	}
}

func TestNewRouterNotFoundEnvelope(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/does/not/exist", nil))

	assertError(t, rr, http.StatusNotFound, "route_not_found")
}

func TestNewRouterMethodNotAllowed(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	assertError(t, rr, http.StatusMethodNotAllowed, "method_not_allowed")
}

func TestNewRouterCapsRequestBodies(t *testing.T) {
	echo := func(r chi.Router) {
		r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
			if _, err := io.ReadAll(r.Body); err != nil {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
	router := NewRouter(WithAPIRoutes(echo), WithMaxBodyBytes(16))

	small := httptest.NewRecorder()
	router.ServeHTTP(small, httptest.NewRequest(http.MethodPost, "/api/v1/echo", strings.NewReader("{}")))
	if small.Code != http.StatusNoContent {
		t.Fatalf("expected small body accepted, got %d", small.Code)
	}

	large := httptest.NewRecorder()
	router.ServeHTTP(large, httptest.NewRequest(http.MethodPost, "/api/v1/echo", strings.NewReader(strings.Repeat("x", 64))))
	if large.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected oversized body rejected, got %d", large.Code)
	}
}
