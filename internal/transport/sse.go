package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	srverrors "github.com/wagiedev/analytics-mcp/internal/errors"
	"github.com/wagiedev/analytics-mcp/internal/registry"
	"github.com/wagiedev/analytics-mcp/internal/session"
	"github.com/wagiedev/analytics-mcp/internal/trust"
)

// queueTimeout bounds how long a POST waits for room on a slow client's
// push channel before failing the request directly.
const queueTimeout = 5 * time.Second

// SSEConfig configures the legacy SSE transport adapter.
type SSEConfig struct {
	Log       *slog.Logger
	Policy    trust.Policy
	Registry  *registry.Registry
	Tracker   *session.Tracker
	BasePath  string
	KeepAlive time.Duration

	ServerName    string
	ServerVersion string
	Instructions  string
}

// SSE is the legacy HTTP+SSE transport adapter: one long-lived server-push
// stream per connection at the base path, plus a separate client-to-server
// request channel at {base}/message. Each POST runs on its own connection
// goroutine, so in-flight invocations on one session never block each other.
type SSE struct {
	log       *slog.Logger
	policy    trust.Policy
	registry  *registry.Registry
	tracker   *session.Tracker
	basePath  string
	keepAlive time.Duration

	name         string
	version      string
	instructions string

	clientsMu sync.RWMutex
	clients   map[string]*sseClient
}

// sseClient is one connected push stream.
type sseClient struct {
	id          string
	messages    chan []byte
	ctx         context.Context
	cancel      context.CancelFunc
	initialized atomic.Bool
}

// NewSSE creates the SSE adapter.
func NewSSE(cfg SSEConfig) *SSE {
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}

	return &SSE{
		log:          cfg.Log.With("component", "sse"),
		policy:       cfg.Policy,
		registry:     cfg.Registry,
		tracker:      cfg.Tracker,
		basePath:     cfg.BasePath,
		keepAlive:    keepAlive,
		name:         cfg.ServerName,
		version:      cfg.ServerVersion,
		instructions: cfg.Instructions,
		clients:      make(map[string]*sseClient, 8),
	}
}

// ServeHTTP dispatches between the push stream and the request channel.
func (a *SSE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case a.basePath:
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		a.handleStream(w, r)
	case a.basePath + "/message":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		a.handleMessage(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleStream establishes the push channel: trust gate, session
// registration, the endpoint handshake frame, then the event loop until the
// client disconnects or the server shuts down.
func (a *SSE) handleStream(w http.ResponseWriter, r *http.Request) {
	if d := a.policy.Evaluate(r.Host); !d.Allowed {
		a.log.Warn("rejected connection by trust policy", "host", r.Host, "reason", d.Reason)
		http.Error(w, "Forbidden: "+d.Reason, http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	err := a.tracker.Register(session.Session{
		ID:         id,
		Kind:       session.KindSSE,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		CreatedAt:  time.Now(),
	})
	if err != nil {
		http.Error(w, "server is not accepting connections", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &sseClient{
		id:       id,
		messages: make(chan []byte, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.clientsMu.Lock()
	a.clients[id] = c
	a.clientsMu.Unlock()

	defer func() {
		a.clientsMu.Lock()
		delete(a.clients, id)
		a.clientsMu.Unlock()
		cancel()
		// Idempotent against the tracker's own eviction at shutdown.
		a.tracker.Unregister(id)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The endpoint event tells the client where to POST its requests.
	fmt.Fprintf(w, "event: endpoint\ndata: %s/message?sessionId=%s\n\n", a.basePath, id)
	flusher.Flush()

	ticker := time.NewTicker(a.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.messages:
			// Every pushed event carries a monotonic id for client-side resumption.
			if _, err := fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", ulid.Make(), msg); err != nil {
				a.log.Debug("push write failed, closing stream", "session_id", id, "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleMessage receives one JSON-RPC request and delivers the response
// through the session's push channel.
func (a *SSE) handleMessage(w http.ResponseWriter, r *http.Request) {
	if d := a.policy.Evaluate(r.Host); !d.Allowed {
		http.Error(w, "Forbidden: "+d.Reason, http.StatusForbidden)
		return
	}

	sid := r.URL.Query().Get("sessionId")
	if sid == "" {
		writeJSON(w, http.StatusBadRequest, newError(nil, codeInvalidRequest, "missing sessionId parameter"))
		return
	}

	a.clientsMu.RLock()
	c, ok := a.clients[sid]
	a.clientsMu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, newError(nil, codeInvalidRequest, "unknown session: "+sid))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, newError(nil, codeParseError, "failed to read request body"))
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, newError(nil, codeParseError, "parse error"))
		return
	}

	a.log.Debug("rpc request", "session_id", sid, "method", req.Method, "id", req.ID)

	switch req.Method {
	case "initialize":
		a.push(w, c, newResult(req.ID, a.initializeResult()))
	case "notifications/initialized":
		c.initialized.Store(true)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case "ping":
		a.push(w, c, newResult(req.ID, map[string]any{}))
	case "tools/list":
		if !c.initialized.Load() {
			a.push(w, c, newError(req.ID, codeNotInitialized, "session not initialized"))
			return
		}
		a.push(w, c, newResult(req.ID, map[string]any{"tools": a.toolList()}))
	case "tools/call":
		if !c.initialized.Load() {
			a.push(w, c, newError(req.ID, codeNotInitialized, "session not initialized"))
			return
		}
		a.push(w, c, a.callTool(c.ctx, req))
	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			// Other notifications are acknowledged and ignored.
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
			return
		}
		a.push(w, c, newError(req.ID, codeMethodNotFound, "method not found: "+req.Method))
	}
}

func (a *SSE) initializeResult() map[string]any {
	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo": map[string]any{
			"name":    a.name,
			"version": a.version,
		},
	}
	if a.instructions != "" {
		result["instructions"] = a.instructions
	}

	return result
}

func (a *SSE) toolList() []map[string]any {
	descriptors := a.registry.List()
	tools := make([]map[string]any, 0, len(descriptors))
	for _, d := range descriptors {
		schema := d.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		tools = append(tools, map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"inputSchema": schema,
		})
	}

	return tools
}

// callTool runs one invocation through the shared registry core and
// translates the outcome into the SSE transport's native encoding: a
// protocol error naming the tool when it is unknown, an isError result for
// handler failures, and a text + structuredContent result on success. The
// session stays open in every case.
func (a *SSE) callTool(ctx context.Context, req rpcRequest) rpcResponse {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return newError(req.ID, codeInvalidParams, "invalid tools/call params")
	}

	result, err := a.registry.Invoke(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, srverrors.ErrToolNotFound) {
			return newError(req.ID, codeToolNotFound, "tool not found: "+params.Name)
		}

		return newResult(req.ID, map[string]any{
			"content": []map[string]any{{"type": "text", "text": err.Error()}},
			"isError": true,
		})
	}

	text, err := json.Marshal(result)
	if err != nil {
		return newError(req.ID, codeInternalError, "failed to encode tool result")
	}

	return newResult(req.ID, map[string]any{
		"content":           []map[string]any{{"type": "text", "text": string(text)}},
		"structuredContent": result,
	})
}

// push queues a response on the session's push channel and acknowledges the
// POST. If the client is gone or the channel stays full past the queue
// timeout, the error is returned directly on the POST instead.
func (a *SSE) push(w http.ResponseWriter, c *sseClient, resp rpcResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, newError(resp.ID, codeInternalError, "failed to marshal response"))
		return
	}

	select {
	case c.messages <- data:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case <-c.ctx.Done():
		writeJSON(w, http.StatusOK, newError(resp.ID, codeInternalError, "session closed"))
	case <-time.After(queueTimeout):
		writeJSON(w, http.StatusOK, newError(resp.ID, codeInternalError, "timeout queueing response"))
	}
}

// CloseAll cancels every connected push stream. Called at shutdown after the
// listener stops accepting.
func (a *SSE) CloseAll() {
	a.clientsMu.Lock()
	defer a.clientsMu.Unlock()

	for _, c := range a.clients {
		c.cancel()
	}
}
