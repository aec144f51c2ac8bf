package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"custodia.org/internal/audit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDGeneratesAndHonors(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = audit.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/info", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen == "" || rec.Header().Get(requestIDHeader) != seen {
		t.Fatalf("generated id not propagated: ctx=%q header=%q", seen, rec.Header().Get(requestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/info", nil)
	req.Header.Set(requestIDHeader, "caller-id-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "caller-id-1" {
		t.Fatalf("caller id ignored, got %q", seen)
	}

	// Oversized caller ids are replaced.
	req = httptest.NewRequest(http.MethodGet, "/v1/info", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", 65))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if strings.Contains(seen, "xxx") {
		t.Fatalf("oversized caller id kept: %q", seen)
	}
}

func TestRateLimitPerIP(t *testing.T) {
	h := RateLimit(okHandler(), 2, 1)

	fire := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if fire("198.51.100.1:1000") != http.StatusOK || fire("198.51.100.1:1000") != http.StatusOK {
		t.Fatal("burst requests should pass")
	}
	if fire("198.51.100.1:1000") != http.StatusTooManyRequests {
		t.Fatal("third request should be limited")
	}
	// A different client has its own bucket.
	if fire("198.51.100.2:1000") != http.StatusOK {
		t.Fatal("other clients must not share the bucket")
	}
}

func TestPruneBucketsDropsStaleEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buckets := map[string]*ipBucket{
		"198.51.100.1": {ts: now.Add(-10 * time.Minute)},
		"198.51.100.2": {ts: now.Add(-time.Minute)},
	}
	pruneBuckets(buckets, now.Add(-bucketTTL))
	if _, ok := buckets["198.51.100.1"]; ok {
		t.Fatal("stale bucket survived the sweep")
	}
	if _, ok := buckets["198.51.100.2"]; !ok {
		t.Fatal("live bucket must survive the sweep")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	if got := clientIP(req); got != "192.0.2.7" {
		t.Fatalf("got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.50, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.50" {
		t.Fatalf("xff: got %q", got)
	}
}
