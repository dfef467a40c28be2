package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type readyOK struct{}

func (readyOK) Ping(context.Context) error { return nil }

type readyErr struct{}

func (readyErr) Ping(context.Context) error { return errors.New("database offline") }

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(":0", readyOK{})
	defer srv.limiter.stop()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		Status    string `json:"status"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body.Status != "OK" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Message != "Budget App Server is running" {
		t.Errorf("message = %q", body.Message)
	}
	if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", body.Timestamp, err)
	}
}

func TestSPAFallback(t *testing.T) {
	srv := NewServer(":0", readyOK{})
	defer srv.limiter.stop()

	// Root serves the app shell.
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("index status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Family Budget") {
		t.Fatalf("index body missing app shell")
	}

	// Unknown client-side routes fall back to the same shell.
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/budget/settings", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("fallback status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Family Budget") {
		t.Fatalf("fallback did not serve app shell")
	}

	// Real assets are served as themselves.
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app.css", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("asset status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "<!doctype html>") {
		t.Fatalf("asset request served the app shell")
	}
}

func TestLivenessAndReadiness(t *testing.T) {
	srv := NewServer(":0", readyOK{})
	defer srv.limiter.stop()

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}
}

func TestReadinessFailsWhenBackendDown(t *testing.T) {
	srv := NewServer(":0", readyErr{})
	defer srv.limiter.stop()

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rr.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := NewServer(":0", readyOK{})
	defer srv.limiter.stop()

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestIPLimiterAllows(t *testing.T) {
	rl := &ipLimiter{limit: 60, window: time.Minute, visitors: make(map[string]*visitor), stopSweep: make(chan struct{})}
	metrics := &securityMetrics{}

	for i := 0; i < 60; i++ {
		if !rl.allow("10.0.0.1", metrics) {
			t.Fatalf("request %d rejected under the limit", i+1)
		}
	}
	if rl.allow("10.0.0.1", metrics) {
		t.Fatal("request 61 allowed over the limit")
	}
	// Other clients have their own budget.
	if !rl.allow("10.0.0.2", metrics) {
		t.Fatal("separate client rejected")
	}
	if metrics.rateLimitHits != 1 {
		t.Fatalf("rateLimitHits = %d", metrics.rateLimitHits)
	}
}

func TestIPLimiterWindowReset(t *testing.T) {
	rl := &ipLimiter{limit: 2, window: time.Minute, visitors: make(map[string]*visitor), stopSweep: make(chan struct{})}

	rl.allow("10.0.0.1", nil)
	rl.allow("10.0.0.1", nil)
	if rl.allow("10.0.0.1", nil) {
		t.Fatal("request over the limit allowed")
	}

	// Age the window out; the next request opens a fresh one.
	rl.mu.Lock()
	rl.visitors["10.0.0.1"].windowStart = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()
	if !rl.allow("10.0.0.1", nil) {
		t.Fatal("request rejected after the window expired")
	}
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	srv := NewServer(":0", readyOK{})
	defer srv.limiter.stop()
	srv.limiter.limit = 3

	get := func(path string) int {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.9:1234"
		srv.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 3; i++ {
		if code := get("/api/health"); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, code)
		}
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit API status = %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}

	// Static asset requests never count against the budget.
	if code := get("/app.css"); code != http.StatusOK {
		t.Fatalf("static request status = %d after limit hit", code)
	}
	if code := get("/"); code != http.StatusOK {
		t.Fatalf("shell request status = %d after limit hit", code)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:4312",
			want:       "203.0.113.7",
		},
		{
			name:       "trusted proxy with X-Forwarded-For",
			remoteAddr: "127.0.0.1:4312",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "untrusted peer headers ignored",
			remoteAddr: "203.0.113.7:4312",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "trusted proxy with X-Real-IP",
			remoteAddr: "192.168.1.10:9000",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "garbage forwarded header falls back",
			remoteAddr: "127.0.0.1:4312",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
			want:       "127.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	metrics := &securityMetrics{}

	req := httptest.NewRequest(http.MethodGet, "/budget/settings", nil)
	if detectSuspiciousRequest(req, metrics) {
		t.Error("normal request flagged")
	}

	req = httptest.NewRequest(http.MethodGet, "/.git/config", nil)
	if !detectSuspiciousRequest(req, metrics) {
		t.Error("probe path not flagged")
	}
	if metrics.suspiciousRequests != 1 {
		t.Errorf("suspiciousRequests = %d", metrics.suspiciousRequests)
	}
}
