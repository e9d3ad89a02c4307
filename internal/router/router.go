// Package router binds path prefixes to transport adapters on one listener.
//
// The router is a plain http.Handler over an immutable set of RouteBindings,
// independent of any HTTP framework. It holds no session state; each
// dispatched request is time-stamped by the observability middleware.
package router

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	srverrors "github.com/wagiedev/analytics-mcp/internal/errors"
)

// HealthPath is the liveness route. It answers from static state with no
// dependency on the registry or the session tracker, so it stays reachable
// even when those subsystems are degraded.
const HealthPath = "/health"

// Binding maps one path prefix to a transport adapter. A prefix matches
// itself and everything below it ("/mcp" matches "/mcp" and "/mcp/...").
type Binding struct {
	Prefix  string
	Handler http.Handler
}

// Router dispatches inbound requests to the matching binding.
type Router struct {
	log      *slog.Logger
	bindings []Binding
}

// New validates the bindings and builds a Router. Prefixes must be non-empty
// rooted paths without trailing slashes, must not collide with the health
// route, and must not overlap each other.
func New(log *slog.Logger, bindings ...Binding) (*Router, error) {
	for i, b := range bindings {
		if err := validatePrefix(b.Prefix); err != nil {
			return nil, &srverrors.RouteError{Prefix: b.Prefix, Err: err}
		}
		if b.Handler == nil {
			return nil, &srverrors.RouteError{Prefix: b.Prefix, Err: fmt.Errorf("nil handler")}
		}
		for _, other := range bindings[:i] {
			if overlaps(b.Prefix, other.Prefix) {
				return nil, &srverrors.RouteError{Prefix: b.Prefix, Err: fmt.Errorf("overlaps %s", other.Prefix)}
			}
		}
	}

	return &Router{
		log:      log.With("component", "router"),
		bindings: bindings,
	}, nil
}

// ServeHTTP dispatches to the unique binding whose prefix matches, the health
// route, or a 404.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == HealthPath {
		rt.serveHealth(w, r)
		return
	}

	for _, b := range rt.bindings {
		if r.URL.Path == b.Prefix || strings.HasPrefix(r.URL.Path, b.Prefix+"/") {
			b.Handler.ServeHTTP(w, r)
			return
		}
	}

	rt.log.Debug("no route", "method", r.Method, "path", r.URL.Path)
	http.NotFound(w, r)
}

func (rt *Router) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = io.WriteString(w, "OK")
	}
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("empty prefix")
	case !strings.HasPrefix(prefix, "/"):
		return fmt.Errorf("prefix must start with /")
	case prefix == "/":
		return fmt.Errorf("prefix must not be the root")
	case strings.HasSuffix(prefix, "/"):
		return fmt.Errorf("prefix must not end with /")
	case prefix == HealthPath || strings.HasPrefix(prefix, HealthPath+"/"):
		return fmt.Errorf("prefix collides with health route")
	}

	return nil
}

// overlaps reports whether one prefix shadows the other at a path-segment
// boundary. "/mcp" and "/mcpx" do not overlap; "/mcp" and "/mcp/v2" do.
func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
