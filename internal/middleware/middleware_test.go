package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"emotionserver/internal/logger"
)

type observation struct {
	route  string
	method string
	status int
}

type fakeRecorder struct{ seen []observation }

func (f *fakeRecorder) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	f.seen = append(f.seen, observation{route, method, status})
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetRequestID(r.Context())))
}

func TestRequestID(t *testing.T) {
	h := RequestID(http.HandlerFunc(okHandler))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get(RequestIDHeader)
		if len(id) != 36 {
			t.Fatalf("expected a UUID, got %q", id)
		}
		if rec.Body.String() != id {
			t.Errorf("context id %q differs from header %q", rec.Body.String(), id)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Errorf("expected supplied id, got %q", got)
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware("secret", http.HandlerFunc(okHandler))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing token", "/history", "", http.StatusUnauthorized},
		{"wrong token", "/history", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "/history", "Bearer secret", http.StatusOK},
		{"query token", "/api/view?token=secret", "", http.StatusOK},
		{"health is public", "/healthz", "", http.StatusOK},
		{"metrics is public", "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, expected %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	h := AuthMiddleware("", http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/history", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected open access, got %d", rec.Code)
	}
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /history/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	rec := &fakeRecorder{}
	h := Metrics(rec, logger.NewNop(), mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/history/42", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if len(rec.seen) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(rec.seen))
	}
	if got := rec.seen[0]; got.route != "GET /history/{id}" || got.status != http.StatusNotFound {
		t.Errorf("unexpected observation %+v", got)
	}
	if got := rec.seen[1]; got.route != "unmatched" || got.status != http.StatusNotFound {
		t.Errorf("unexpected observation %+v", got)
	}
}
