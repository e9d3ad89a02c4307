//go:build integration

package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	analyticsmcp "github.com/wagiedev/analytics-mcp"
)

// startServer boots a full server on an ephemeral port with the standard
// toolset plus a slow tool for drain testing.
func startServer(t *testing.T) *analyticsmcp.Server {
	t.Helper()

	srv, err := analyticsmcp.New(
		analyticsmcp.WithLogger(analyticsmcp.NopLogger()),
		analyticsmcp.WithHost("127.0.0.1"),
		analyticsmcp.WithPort(0),
		analyticsmcp.WithServerInfo("analytics-integration", "0.0.1"),
		analyticsmcp.WithDrainTimeout(5*time.Second),
		analyticsmcp.WithKeepAliveInterval(time.Second),
	)
	require.NoError(t, err)

	tools := []analyticsmcp.Tool{
		analyticsmcp.NewTool("echo", "Returns the arguments unchanged.",
			analyticsmcp.ObjectSchema(nil, nil),
			func(_ context.Context, args map[string]any) (map[string]any, error) {
				return map[string]any{"echo": args}, nil
			},
		),
		analyticsmcp.NewTool("slow", "Sleeps before answering.",
			analyticsmcp.ObjectSchema(nil, nil),
			func(ctx context.Context, _ map[string]any) (map[string]any, error) {
				select {
				case <-time.After(500 * time.Millisecond):
					return map[string]any{"done": true}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		),
	}
	require.NoError(t, srv.RegisterTool(tools...))
	require.NoError(t, srv.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return srv
}

// TestFullStack_StreamableClient exercises the complete streamable path with
// the official SDK client: list, call, structured output.
func TestFullStack_StreamableClient(t *testing.T) {
	srv := startServer(t)

	client := mcp.NewClient(&mcp.Implementation{Name: "integration-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{
		Endpoint: "http://" + srv.Addr() + "/mcp",
	}, nil)
	require.NoError(t, err)
	defer cs.Close()

	list, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, list.Tools, 2)

	result, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"x": 1},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	structured, ok := result.StructuredContent.(map[string]any)
	require.True(t, ok)
	require.Equal(t, map[string]any{"x": float64(1)}, structured["echo"])
}

// TestFullStack_LegacySSEClient drives the legacy wire protocol by hand:
// stream handshake, initialize, tools/call, response over the push channel.
func TestFullStack_LegacySSEClient(t *testing.T) {
	srv := startServer(t)
	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/sse")
	require.NoError(t, err)
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := br.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "" && (event != "" || data != ""):
				return event, data
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	event, endpoint := readEvent()
	require.Equal(t, "endpoint", event)
	msgURL := base + endpoint

	send := func(payload map[string]any) {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		post, err := http.Post(msgURL, "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		post.Body.Close()
		require.Equal(t, http.StatusAccepted, post.StatusCode)
	}
	readResponse := func() map[string]any {
		for {
			event, data := readEvent()
			if event != "message" {
				continue
			}
			var out map[string]any
			require.NoError(t, json.Unmarshal([]byte(data), &out))
			return out
		}
	}

	send(map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": map[string]any{"protocolVersion": "2024-11-05"},
	})
	init := readResponse()
	require.Nil(t, init["error"])

	send(map[string]any{"jsonrpc": "2.0", "method": "notifications/initialized"})

	send(map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": "tools/call",
		"params": map[string]any{"name": "echo", "arguments": map[string]any{"x": 1}},
	})
	call := readResponse()
	require.Nil(t, call["error"])

	result := call["result"].(map[string]any)
	structured := result["structuredContent"].(map[string]any)
	require.Equal(t, map[string]any{"x": float64(1)}, structured["echo"])
}

// TestFullStack_DrainCompletesInFlight starts a slow call, shuts down while
// it is running, and verifies the response still arrives.
func TestFullStack_DrainCompletesInFlight(t *testing.T) {
	srv := startServer(t)

	client := mcp.NewClient(&mcp.Implementation{Name: "integration-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{
		Endpoint: "http://" + srv.Addr() + "/mcp",
	}, nil)
	require.NoError(t, err)
	defer cs.Close()

	type outcome struct {
		result *mcp.CallToolResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      "slow",
			Arguments: map[string]any{},
		})
		done <- outcome{result, err}
	}()

	time.Sleep(100 * time.Millisecond)

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownDone <- srv.Shutdown(ctx)
	}()

	select {
	case o := <-done:
		require.NoError(t, o.err)
		require.False(t, o.result.IsError)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight call did not complete during drain")
	}

	require.NoError(t, <-shutdownDone)
	require.Equal(t, 0, srv.ActiveSessions())
}
