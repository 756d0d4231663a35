package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mnehpets/rpcserve/internal/config"
	"github.com/mnehpets/rpcserve/internal/metrics"
	"github.com/mnehpets/rpcserve/internal/services"
)

func testConfig() *config.Config {
	return &config.Config{AppConfig: config.AppConfig{
		Name:       "rpcserved",
		Env:        "test",
		ListenAddr: ":0",
		LogFormat:  "text",
		LogLevel:   "ERROR",
		Serializer: config.SerializerJSON,
	}}
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := metrics.New(prometheus.NewRegistry(), metricsPrefix, cfg.AppConfig.Name, cfg.AppConfig.Env)
	a, err := newApp(cfg, log, store)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes_RPC(t *testing.T) {
	srv := newTestServer(t, testConfig())

	resp := post(t, srv.URL+"/rpc", `{"jsonrpc":"2.0","method":"math.add","params":[2,3],"id":7}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected API headers, got X-Content-Type-Options=%q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if got := strings.TrimSpace(string(body)); got != `{"jsonrpc":"2.0","result":5,"id":7}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestRoutes_RPC_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/rpc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

func TestRoutes_RPC_CBOR(t *testing.T) {
	cfg := testConfig()
	cfg.AppConfig.Serializer = config.SerializerCBOR
	srv := newTestServer(t, cfg)

	resp := post(t, srv.URL+"/rpc", `{"jsonrpc":"2.0","method":"system.ping","id":"p"}`)
	if got := resp.Header.Get("Content-Type"); got != "application/cbor" {
		t.Fatalf("expected cbor content type, got %q", got)
	}
	var out map[string]any
	if err := cbor.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode cbor: %v", err)
	}
	if out["result"] != "pong" || out["id"] != "p" {
		t.Fatalf("unexpected response %v", out)
	}
}

func TestRoutes_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AppConfig.RateLimit = 0.0001
	cfg.AppConfig.RateBurst = 1
	srv := newTestServer(t, cfg)

	body := `{"jsonrpc":"2.0","method":"system.ping","id":1}`
	if resp := post(t, srv.URL+"/rpc", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/rpc", body); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, resp.StatusCode)
	}
}

func TestRoutes_CustomMethods(t *testing.T) {
	cfg := testConfig()
	cfg.Methods = map[string]string{"plus": "math::Add", "broken": "nope::Nothing"}
	cfg.Translations = map[string]string{"divisor must not be zero": "zero divisor"}
	srv := newTestServer(t, cfg)

	var out struct {
		Result any `json:"result"`
		Error  *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	resp := post(t, srv.URL+"/rpc", `{"jsonrpc":"2.0","method":"plus","params":{"a":1,"b":1},"id":1}`)
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Result != float64(2) {
		t.Fatalf("unexpected result %v", out.Result)
	}

	out.Result, out.Error = nil, nil
	resp = post(t, srv.URL+"/rpc", `{"jsonrpc":"2.0","method":"broken","id":1}`)
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error == nil || out.Error.Code != -32601 {
		t.Fatalf("expected method not found, got %+v", out)
	}
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, testConfig())
	post(t, srv.URL+"/rpc", `{"jsonrpc":"2.0","method":"system.ping","id":1}`)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" || health["methods"] != float64(7) {
		t.Fatalf("unexpected health %v", health)
	}

	mresp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer mresp.Body.Close()
	text, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(text), `rpcserved_rpc_calls_total{code="0",method="system.ping"} 1`) {
		t.Fatalf("expected call counter in metrics output, got:\n%s", text)
	}
}

func TestNewSerializer_Unknown(t *testing.T) {
	if _, err := newSerializer("xml"); err == nil {
		t.Fatalf("expected error for unknown serializer")
	}
}

func TestBuildRegistry_RejectsMalformedTarget(t *testing.T) {
	cfg := testConfig()
	cfg.Methods = map[string]string{"bad": "noseparator"}
	if _, err := buildRegistry(cfg); err == nil {
		t.Fatalf("expected error for malformed target")
	}
}

func postFrom(t *testing.T, url, forwardedFor, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	req.Header.Set("X-Real-IP", forwardedFor)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes_RateLimit_IgnoresForwardedHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.AppConfig.RateLimit = 0.0001
	cfg.AppConfig.RateBurst = 1
	srv := newTestServer(t, cfg)

	body := `{"jsonrpc":"2.0","method":"system.ping","id":1}`
	limited := 0
	for i := 0; i < 20; i++ {
		resp := postFrom(t, srv.URL+"/rpc", fmt.Sprintf("203.0.113.%d", i+1), body)
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 19 {
		t.Fatalf("expected 19 limited requests, got %d", limited)
	}
}

func TestRoutes_RateLimit_TrustedProxyHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.AppConfig.RateLimit = 0.0001
	cfg.AppConfig.RateBurst = 1
	cfg.AppConfig.TrustProxyHeaders = true
	srv := newTestServer(t, cfg)

	body := `{"jsonrpc":"2.0","method":"system.ping","id":1}`
	if resp := postFrom(t, srv.URL+"/rpc", "203.0.113.1", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if resp := postFrom(t, srv.URL+"/rpc", "203.0.113.2", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected a separate bucket per forwarded client, got %d", resp.StatusCode)
	}
	if resp := postFrom(t, srv.URL+"/rpc", "203.0.113.1", body); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, resp.StatusCode)
	}
}

func TestRoutes_RPC_NonFiniteResult(t *testing.T) {
	srv := newTestServer(t, testConfig())

	resp := post(t, srv.URL+"/rpc", `{"jsonrpc":"2.0","method":"math.add","params":[1e308,1e308],"id":1}`)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("got status %d, Content-Type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var out struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
		ID any `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error.Code != services.CodeNotFinite || out.ID != float64(1) {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestRoutes_HealthVerbose(t *testing.T) {
	srv := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/healthz?verbose=true")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	var health struct {
		Methods     int      `json:"methods"`
		MethodNames []string `json:"method_names"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Methods != 7 || len(health.MethodNames) != 7 || health.MethodNames[0] != "math.add" {
		t.Fatalf("unexpected health %+v", health)
	}

	bad, err := http.Get(srv.URL + "/healthz?verbose=maybe")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, bad.StatusCode)
	}
}

func TestRoutes_LiveAndVersion(t *testing.T) {
	srv := newTestServer(t, testConfig())

	live, err := http.Get(srv.URL + "/livez")
	if err != nil {
		t.Fatalf("GET /livez: %v", err)
	}
	defer live.Body.Close()
	if live.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, live.StatusCode)
	}

	vresp, err := http.Get(srv.URL + "/version")
	if err != nil {
		t.Fatalf("GET /version: %v", err)
	}
	defer vresp.Body.Close()
	text, _ := io.ReadAll(vresp.Body)
	if !strings.HasPrefix(string(text), "rpcserved "+version) {
		t.Fatalf("unexpected version text %q", text)
	}
	if ct := vresp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected Content-Type %q", ct)
	}
}
