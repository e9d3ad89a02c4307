package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	srverrors "github.com/wagiedev/analytics-mcp/internal/errors"
	"github.com/wagiedev/analytics-mcp/internal/registry"
	"github.com/wagiedev/analytics-mcp/internal/session"
	"github.com/wagiedev/analytics-mcp/internal/trust"
)

// sessionHeader carries the session id on the streamable transport. The SDK
// issues it on initialize responses and expects it back on every follow-up.
const sessionHeader = "Mcp-Session-Id"

// StreamableConfig configures the streamable HTTP transport adapter.
type StreamableConfig struct {
	Log      *slog.Logger
	Policy   trust.Policy
	Registry *registry.Registry
	Tracker  *session.Tracker

	ServerName    string
	ServerVersion string
	Instructions  string
}

// Streamable is the current-protocol transport adapter. Protocol framing and
// session issuance belong to the SDK; this wrapper adds the trust gate,
// refuses new sessions once the tracker stops accepting, and mirrors the
// SDK's session lifecycle into the tracker by watching the session header.
type Streamable struct {
	log     *slog.Logger
	policy  trust.Policy
	tracker *session.Tracker
	handler http.Handler
}

// NewStreamable builds the SDK server from the frozen registry and wraps its
// HTTP handler. Every registered descriptor becomes one SDK tool; a schema
// that does not round-trip into the SDK's representation fails construction.
func NewStreamable(cfg StreamableConfig) (*Streamable, error) {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, &mcp.ServerOptions{
		Instructions: cfg.Instructions,
	})

	for _, d := range cfg.Registry.List() {
		schema, err := toSchema(d.InputSchema)
		if err != nil {
			return nil, &srverrors.ToolError{Tool: d.Name, Err: err}
		}
		srv.AddTool(&mcp.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: schema,
		}, invokeHandler(cfg.Registry, d.Name))
	}

	return &Streamable{
		log:     cfg.Log.With("component", "streamable"),
		policy:  cfg.Policy,
		tracker: cfg.Tracker,
		handler: mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil),
	}, nil
}

// invokeHandler adapts one registry tool into the SDK's handler shape. Tool
// failures are encoded as isError results rather than protocol errors, so a
// failing tool never tears down its session.
func invokeHandler(reg *registry.Registry, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return errorResult("invalid arguments for tool " + name + ": " + err.Error()), nil
			}
		}

		result, err := reg.Invoke(ctx, name, args)
		if err != nil {
			return errorResult(err.Error()), nil
		}

		text, err := json.Marshal(result)
		if err != nil {
			return errorResult("failed to encode result for tool " + name + ": " + err.Error()), nil
		}

		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
			StructuredContent: result,
		}, nil
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}

// toSchema converts a descriptor's plain-map schema into the SDK form. A nil
// map means the tool takes any object.
func toSchema(m map[string]any) (*jsonschema.Schema, error) {
	if m == nil {
		return &jsonschema.Schema{Type: "object"}, nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}

	return &schema, nil
}

// ServeHTTP gates the request, delegates to the SDK, and reconciles the
// tracker with what the SDK decided about the session.
func (a *Streamable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d := a.policy.Evaluate(r.Host); !d.Allowed {
		a.log.Warn("rejected connection by trust policy", "host", r.Host, "reason", d.Reason)
		http.Error(w, "Forbidden: "+d.Reason, http.StatusForbidden)
		return
	}

	requestID := r.Header.Get(sessionHeader)
	if requestID == "" && a.tracker.State() != session.StateAccepting {
		// No point letting the SDK mint a session the tracker would refuse.
		http.Error(w, "server is not accepting new sessions", http.StatusServiceUnavailable)
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	a.handler.ServeHTTP(rec, r)

	if rec.status < 200 || rec.status >= 300 {
		return
	}

	switch {
	case requestID == "":
		if issued := rec.Header().Get(sessionHeader); issued != "" {
			err := a.tracker.Register(session.Session{
				ID:         issued,
				Kind:       session.KindStreamable,
				RemoteAddr: r.RemoteAddr,
				UserAgent:  r.UserAgent(),
				CreatedAt:  time.Now(),
			})
			if err != nil {
				// The SDK already committed the response; the session will be
				// evicted with everything else when the tracker stops.
				a.log.Warn("session issued while tracker refused registration", "session_id", issued, "error", err)
			}
		}
	case r.Method == http.MethodDelete:
		a.tracker.Unregister(requestID)
	}
}

// statusRecorder captures the response status so the adapter can tell whether
// the SDK accepted the request. Flush is forwarded for the handler's SSE-mode
// responses.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
