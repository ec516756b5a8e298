package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v5"
)

func newMiddlewareEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mw...)
	ok := func(c *echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/v1/history", ok)
	e.GET("/healthz", ok)
	return e
}

func serve(e *echo.Echo, path, remote string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	t.Parallel()

	e := newMiddlewareEcho(RequestID())

	rec := serve(e, "/healthz", "10.0.0.1:1234", nil)
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("expected generated request id")
	}

	rec = serve(e, "/healthz", "10.0.0.1:1234", http.Header{HeaderRequestID: {"abc-123"}})
	if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Fatalf("got %q, want %q", got, "abc-123")
	}
}

func TestRateLimitPerClient(t *testing.T) {
	t.Parallel()

	e := newMiddlewareEcho(RateLimit(0.001, 1, "/healthz"))

	if rec := serve(e, "/v1/history", "10.0.0.1:1", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}
	if rec := serve(e, "/v1/history", "10.0.0.1:2", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec := serve(e, "/v1/history", "10.0.0.2:1", nil); rec.Code != http.StatusOK {
		t.Fatalf("other client: got %d", rec.Code)
	}
	if rec := serve(e, "/healthz", "10.0.0.1:3", nil); rec.Code != http.StatusOK {
		t.Fatalf("skipped path: got %d", rec.Code)
	}
	fwd := http.Header{"X-Forwarded-For": {"192.168.1.9, 10.0.0.1"}}
	if rec := serve(e, "/v1/history", "10.0.0.1:4", fwd); rec.Code != http.StatusOK {
		t.Fatalf("forwarded client: got %d", rec.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	t.Parallel()

	e := newMiddlewareEcho(RateLimit(0, 0))
	for i := range 5 {
		if rec := serve(e, "/v1/history", "10.0.0.1:1", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		remote, xff, want string
	}{
		{"10.1.2.3:5555", "", "10.1.2.3"},
		{"10.1.2.3:5555", " 8.8.8.8 , 1.1.1.1", "8.8.8.8"},
		{"garbage", "", "garbage"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		if tc.xff != "" {
			req.Header.Set("X-Forwarded-For", tc.xff)
		}
		if got := clientIP(req); got != tc.want {
			t.Fatalf("clientIP(%q, %q): got %q, want %q", tc.remote, tc.xff, got, tc.want)
		}
	}
}
