// Package http is the inbound HTTP adapter of the gateway.
//
// It exposes the route table under the API prefix and bridges each route
// to a broker backend, a plain HTTP backend, or the job service.
//
// # Usage
//
//	router := http.NewRouter(authGate)
//	err := router.Mount(http.ResolveRoutes("/api/v1", http.APIRoutes(handlers)))
//	server := http.NewServer(router,
//	    http.WithAddr(":3000"),
//	    http.WithAllowedOrigins([]string{"*"}),
//	    http.WithLogger(logger),
//	)
//	err = server.Start(ctx)
//
// # Endpoints
//
//	GET /health   - Component health (503 when the broker is unreachable)
//	GET /metrics  - Prometheus metrics
//	/api/v1/...   - Gateway routes, see APIRoutes
//
// # Request Headers
//
//	Authorization: Bearer <token>   - Verified by the auth backend on protected routes
//	X-Request-ID: <id>              - Echoed back; generated when absent
//
// # Authorization Chain
//
// Every route carries a statically resolved auth.Policy. Protected routes
// are wrapped at registration as:
//
//	AuthGateMiddleware -> RoleGateMiddleware -> handler
//
// A missing or non-Bearer Authorization header is rejected with 401
// before any backend call. A role outside the route's set is rejected
// with 403 before the handler runs.
//
// # Errors
//
// Errors use one body on every path:
//
//	{"statusCode": 400, "message": "...", "errors": [...] | null, "timestamp": "..."}
//
// Route logic returns errors through Intercept, which normalizes them with
// apierr.Normalize. ErrorFilter is the outermost middleware and renders
// anything that escapes (panics, gate rejections) with apierr.Filter.
// Router misses (404, 405) use the same body.
//
// # Middleware Chain
//
//  1. ErrorFilter - Panic recovery and last-resort error rendering
//  2. MetricsMiddleware - Request count, duration and in-flight gauge
//  3. RequestIDMiddleware - Request ID and enriched logger
//  4. RealIPMiddleware - Client IP, proxy headers from trusted peers only
//  5. CORSMiddleware - Preflight and CORS headers
//  6. RateLimitMiddleware - Per-client GCRA budget (API routes only)
//  7. Router - Gates and route handler
package http
