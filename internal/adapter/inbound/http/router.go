package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
	"github.com/Sentinel-Gate/edgegate/internal/domain/auth"
)

// Route is one endpoint. Path is relative to its group and may use
// net/http pattern wildcards ({id}, {rest...}).
type Route struct {
	Method  string
	Path    string
	Policy  auth.Policy
	Handler http.Handler
	// Target names what the route dispatches to, for the route table.
	Target string
	// Prepare runs before the gates (e.g. lifting a query token).
	Prepare func(http.Handler) http.Handler
}

// Group is a set of routes sharing a path prefix and a default policy.
type Group struct {
	Prefix string
	Policy auth.Policy
	Routes []Route
}

// ResolvedRoute is a route with its policy merged from its group, as it
// is registered.
type ResolvedRoute struct {
	Method       string      `yaml:"method" json:"method"`
	Path         string      `yaml:"path" json:"path"`
	RequiresAuth bool        `yaml:"auth" json:"auth"`
	Roles        []auth.Role `yaml:"roles,omitempty" json:"roles,omitempty"`
	Target       string      `yaml:"target,omitempty" json:"target,omitempty"`

	handler http.Handler
	prepare func(http.Handler) http.Handler
}

// Pattern is the net/http ServeMux pattern of the route.
func (r ResolvedRoute) Pattern() string {
	if r.Method == "" {
		return r.Path
	}
	return r.Method + " " + r.Path
}

// ResolveRoutes merges group and route policies under prefix. A route
// with a role restriction always requires authentication.
func ResolveRoutes(prefix string, groups []Group) []ResolvedRoute {
	var out []ResolvedRoute
	for _, g := range groups {
		for _, rt := range g.Routes {
			policy := auth.Resolve(g.Policy, rt.Policy)
			out = append(out, ResolvedRoute{
				Method:       rt.Method,
				Path:         joinPath(prefix, g.Prefix, rt.Path),
				RequiresAuth: policy.RequiresAuth || len(policy.Roles) > 0,
				Roles:        policy.Roles,
				Target:       rt.Target,
				handler:      rt.Handler,
				prepare:      rt.Prepare,
			})
		}
	}
	return out
}

// joinPath joins non-empty segments with single slashes. A trailing slash
// on the last segment is kept so subtree patterns survive.
func joinPath(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		b.WriteString("/")
		b.WriteString(p)
	}
	path := b.String()
	if path == "" {
		return "/"
	}
	if last := parts[len(parts)-1]; strings.HasSuffix(last, "/") {
		path += "/"
	}
	return path
}

// Router dispatches to registered routes through the AuthGate and RoleGate
// chain. Misses use the uniform error body.
type Router struct {
	mux    *http.ServeMux
	gate   Authenticator
	routes []ResolvedRoute
}

// NewRouter creates an empty Router whose authenticated routes verify
// tokens through gate.
func NewRouter(gate Authenticator) *Router {
	return &Router{mux: http.NewServeMux(), gate: gate}
}

// Mount registers resolved routes. It fails on a route without a handler
// or one that needs a gate when none was configured.
func (rt *Router) Mount(routes []ResolvedRoute) error {
	for _, route := range routes {
		if route.handler == nil {
			return fmt.Errorf("route %s has no handler", route.Pattern())
		}
		h := route.handler
		// Applied innermost first: AuthGate runs strictly before RoleGate.
		if route.RequiresAuth {
			if rt.gate == nil {
				return fmt.Errorf("route %s requires authentication but no gate is configured", route.Pattern())
			}
			h = RoleGateMiddleware(route.Roles)(h)
			h = AuthGateMiddleware(rt.gate)(h)
		}
		if route.prepare != nil {
			h = route.prepare(h)
		}
		rt.mux.Handle(route.Pattern(), h)
		rt.routes = append(rt.routes, route)
	}
	return nil
}

// Handle registers a plain handler outside the route table.
func (rt *Router) Handle(pattern string, h http.Handler) {
	rt.mux.Handle(pattern, h)
}

// Routes returns the mounted routes in registration order.
func (rt *Router) Routes() []ResolvedRoute {
	return append([]ResolvedRoute(nil), rt.routes...)
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h, pattern := rt.mux.Handler(r)
	if pattern == "" {
		// Only the mux's own miss handlers have no pattern. Run them against
		// a sniffer to learn whether this is a 404 or a 405.
		sniff := &statusSniffer{header: http.Header{}}
		h.ServeHTTP(sniff, r)
		switch sniff.status {
		case http.StatusNotFound:
			Fail(w, r, apierr.NotFound(fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path)))
			return
		case http.StatusMethodNotAllowed:
			if allow := sniff.header.Get("Allow"); allow != "" {
				w.Header().Set("Allow", allow)
			}
			Fail(w, r, apierr.MethodNotAllowed())
			return
		}
	}
	rt.mux.ServeHTTP(w, r)
}

// statusSniffer is a ResponseWriter that only records the status.
type statusSniffer struct {
	header http.Header
	status int
}

func (p *statusSniffer) Header() http.Header { return p.header }

func (p *statusSniffer) Write(b []byte) (int, error) {
	if p.status == 0 {
		p.status = http.StatusOK
	}
	return len(b), nil
}

func (p *statusSniffer) WriteHeader(code int) {
	if p.status == 0 {
		p.status = code
	}
}
