package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mnehpets/rpcserve/endpoint"
)

func okHandler(processors ...endpoint.Processor) http.Handler {
	return endpoint.Handler(func(_ http.ResponseWriter, _ *http.Request, _ struct{}) (endpoint.Renderer, error) {
		return &endpoint.StringRenderer{Body: "ok"}, nil
	}, processors...)
}

func TestHeadersProcessor_Defaults(t *testing.T) {
	rec := httptest.NewRecorder()
	okHandler(NewHeadersProcessor()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s: expected %q, got %q", k, v, got)
		}
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("expected no HSTS header by default, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header by default, got %q", got)
	}
}

func TestHeadersProcessor_HSTSAndCacheControl(t *testing.T) {
	rec := httptest.NewRecorder()
	p := NewHeadersProcessor(WithHSTS(3600), WithCacheControl(""))
	okHandler(p).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))

	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains" {
		t.Fatalf("unexpected HSTS header %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "" {
		t.Fatalf("expected Cache-Control to be disabled, got %q", got)
	}
}

func TestHeadersProcessor_CORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		credentials bool
		origin      string
		wantAllow   string
	}{
		{"listed origin", []string{"https://a.example"}, false, "https://a.example", "https://a.example"},
		{"unlisted origin", []string{"https://a.example"}, false, "https://b.example", ""},
		{"wildcard", []string{"*"}, false, "https://b.example", "*"},
		{"wildcard with credentials", []string{"*"}, true, "https://b.example", ""},
		{"no origin header", []string{"*"}, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewHeadersProcessor(WithCORS(&CORSConfig{
				AllowedOrigins:   tt.origins,
				AllowCredentials: tt.credentials,
			}))
			req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			okHandler(p).ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Fatalf("expected Access-Control-Allow-Origin %q, got %q", tt.wantAllow, got)
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
			}
		})
	}
}

func TestHeadersProcessor_Preflight(t *testing.T) {
	called := false
	h := endpoint.Handler(func(_ http.ResponseWriter, _ *http.Request, _ struct{}) (endpoint.Renderer, error) {
		called = true
		return &endpoint.StringRenderer{Body: "ok"}, nil
	}, NewHeadersProcessor(WithCORS(&CORSConfig{AllowedOrigins: []string{"https://a.example"}, MaxAge: 600})))

	req := httptest.NewRequest(http.MethodOptions, "/rpc", nil)
	req.Header.Set("Origin", "https://a.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Fatalf("preflight should not reach the endpoint")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Fatalf("unexpected Access-Control-Allow-Methods %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Authorization" {
		t.Fatalf("unexpected Access-Control-Allow-Headers %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("unexpected Access-Control-Max-Age %q", got)
	}
}

func TestRateLimitProcessor_RejectsAfterBurst(t *testing.T) {
	// A near-zero rate means no tokens are refilled during the test.
	h := okHandler(NewRateLimitProcessor(0.0001, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
			t.Fatalf("expected Retry-After on 429")
		}
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("request %d: expected status %d, got %d", i, want[i], codes[i])
		}
	}
}

func TestRateLimitProcessor_PerClientBuckets(t *testing.T) {
	h := okHandler(NewRateLimitProcessor(0.0001, 1))

	for _, addr := range []string{"192.0.2.1:1", "192.0.2.2:1"} {
		req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", addr, http.StatusOK, rec.Code)
		}
	}

	// Same host, different port shares a bucket.
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.RemoteAddr = "192.0.2.1:2"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, rec.Code)
	}
}

func TestRateLimitProcessor_Global(t *testing.T) {
	h := okHandler(NewRateLimitProcessor(0.0001, 1, GlobalRateLimit()))

	for i, addr := range []string{"192.0.2.1:1", "192.0.2.2:1"} {
		req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		want := http.StatusOK
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("%s: expected status %d, got %d", addr, want, rec.Code)
		}
	}
}

func TestAccessLogProcessor_LogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rec := httptest.NewRecorder()
	okHandler(NewAccessLogProcessor(logger)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))

	line := buf.String()
	for _, want := range []string{"msg=\"http request\"", "method=POST", "path=/rpc", "status=200", "bytes=2"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected log line to contain %q, got %q", want, line)
		}
	}
}

func TestAccessLogProcessor_LogsEndpointErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := okHandler(NewAccessLogProcessor(logger), NewRateLimitProcessor(0.0001, 0))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, rec.Code)
	}
	if !strings.Contains(buf.String(), "status=429") {
		t.Fatalf("expected status=429 in log, got %q", buf.String())
	}
}
