package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Sentinel-Gate/edgegate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/edgegate/internal/domain/ratelimit"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		if LoggerFromContext(r.Context()) == nil {
			t.Error("no logger in context")
		}
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if seen != "abc-123" || w.Header().Get("X-Request-ID") != "abc-123" {
		t.Errorf("kept id = %q, header %q", seen, w.Header().Get("X-Request-ID"))
	}

	for _, incoming := range []string{"", strings.Repeat("a", 129)} {
		r = httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", incoming)
		w = httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if len(seen) != 36 || seen == incoming {
			t.Errorf("incoming %q: generated id = %q", incoming, seen)
		}
	}
}

func TestExtractRealIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "2001:db8::1"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"untrusted peer ignores forwarded", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "192.0.2.1:5555", "192.0.2.1"},
		{"untrusted peer ignores real ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "192.0.2.1:5555", "192.0.2.1"},
		{"trusted peer, single hop", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "10.0.0.2:1", "203.0.113.9"},
		{"spoofed left entries skipped", map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.9, 10.0.0.1"}, "10.0.0.2:1", "203.0.113.9"},
		{"all hops trusted", map[string]string{"X-Forwarded-For": "10.0.0.7, 10.0.0.1"}, "10.0.0.2:1", "10.0.0.2"},
		{"garbage hop stops the walk", map[string]string{"X-Forwarded-For": "203.0.113.9, nonsense, 10.0.0.1"}, "10.0.0.2:1", "10.0.0.2"},
		{"trusted peer, real ip", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:1", "198.51.100.4"},
		{"trusted ipv6 peer", map[string]string{"X-Forwarded-For": "2001:db8::99"}, "[2001:db8::1]:443", "2001:db8::99"},
		{"no port", nil, "unix-socket", "unix-socket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := extractRealIP(r, trusted); got != tt.want {
				t.Errorf("extractRealIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Error("invalid prefix accepted")
	}
	if _, err := ParseTrustedProxies([]string{"proxy.internal"}); err == nil {
		t.Error("host name accepted")
	}
	trusted, err := ParseTrustedProxies([]string{"::ffff:10.1.2.3"})
	if err != nil {
		t.Fatal(err)
	}
	if !trusted.contains(netip.MustParseAddr("10.1.2.3")) {
		t.Error("mapped address not matched as ipv4")
	}
	if trusted.contains(netip.MustParseAddr("10.1.2.4")) {
		t.Error("single address matched a neighbour")
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := CORSMiddleware([]string{"https://app.example.com"})(next)

	r := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" || w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Errorf("preflight headers = %v", w.Header())
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusTeapot || w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("unknown origin = %d %v", w.Code, w.Header())
	}

	h = CORSMiddleware([]string{"*"})(next)
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://anything.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("wildcard origin = %v", w.Header())
	}
}

type countingObserver struct{ n int }

func (o *countingObserver) ObserveRateLimited() { o.n++ }

func TestRateLimitMiddleware(t *testing.T) {
	fixedClock(t)
	limiter := memory.NewRateLimiter(time.Minute, time.Hour)
	observer := &countingObserver{}
	limit := ratelimit.Limit{Rate: 2, Burst: 2, Period: time.Minute}

	calls := 0
	h := RealIPMiddleware(nil)(RateLimitMiddleware(limiter, limit, observer)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})))

	request := func(ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/price-comparator", nil)
		r.RemoteAddr = ip + ":4000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	for i := range 2 {
		if w := request("192.0.2.10"); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w := request("192.0.2.10")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("headers = %v", w.Header())
	}
	var body errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.StatusCode != 429 || body.Message != "Rate limit exceeded" || body.Timestamp != "2024-05-01T10:30:00.000Z" {
		t.Errorf("body = %s", w.Body)
	}
	if calls != 2 || observer.n != 1 {
		t.Errorf("calls = %d, observed = %d", calls, observer.n)
	}

	if w := request("192.0.2.11"); w.Code != http.StatusOK {
		t.Errorf("other client = %d, want 200", w.Code)
	}
}

func TestRateLimitMiddleware_IgnoresForwardedFromUntrustedPeer(t *testing.T) {
	limiter := memory.NewRateLimiter(time.Minute, time.Hour)
	limit := ratelimit.Limit{Rate: 1, Burst: 1, Period: time.Minute}
	h := RealIPMiddleware(nil)(RateLimitMiddleware(limiter, limit, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })))

	admitted := 0
	for i := range 20 {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/price-comparator", nil)
		r.RemoteAddr = "192.0.2.50:4000"
		r.Header.Set("X-Forwarded-For", "203.0.113."+strconv.Itoa(i))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code == http.StatusOK {
			admitted++
		}
	}
	if admitted != 1 {
		t.Errorf("admitted %d of 20 requests with rotating X-Forwarded-For, want 1", admitted)
	}
	if limiter.Len() != 1 {
		t.Errorf("limiter keys = %d, want 1", limiter.Len())
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, ratelimit.Limit) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("limiter down")
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	h := RateLimitMiddleware(failingLimiter{}, ratelimit.Limit{Rate: 1, Period: time.Second}, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
