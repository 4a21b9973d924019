package http

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
)

// MetricsMiddleware records request count, duration and in-flight requests.
// Requests are counted per method and status class so gateway-side 4xx
// (auth, validation) can be told apart from 5xx backend failures. Abandoned
// calls (499) keep their own label.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOperationalPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.InFlightRequests.Inc()
			defer metrics.InFlightRequests.Dec()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			began := time.Now()
			next.ServeHTTP(rec, r)

			metrics.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(began).Seconds())
			metrics.RequestsTotal.WithLabelValues(r.Method, statusClass(rec.status)).Inc()
		})
	}
}

// isOperationalPath reports whether path is served outside the API and is
// left out of request metrics.
func isOperationalPath(path string) bool {
	return path == "/metrics" || path == "/health"
}

// statusRecorder remembers the status written by the handler chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter if it supports http.Flusher.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required for the job events websocket to work through the
// metrics middleware. A hijacked connection is recorded as 101.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return hijack(r.ResponseWriter)
}

// statusClass maps a status code to its "Nxx" label. 499 is kept as is.
func statusClass(code int) string {
	if code == apierr.StatusClientClosedRequest {
		return "499"
	}
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
