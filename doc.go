// Package analyticsmcp serves analytics tools over the Model Context
// Protocol's HTTP transports.
//
// A Server mounts the streamable HTTP transport at /mcp and the legacy
// HTTP+SSE transport at /sse on one listener, tracks every live session
// across both, and drains them in an orderly way at shutdown. Tools are
// plain Go functions registered before start; the transports share one
// registry, so a tool behaves identically no matter which protocol
// revision the client speaks.
//
// # Basic Usage
//
//	srv, err := analyticsmcp.New(
//	    analyticsmcp.WithServerInfo("analytics", "1.0.0"),
//	    analyticsmcp.WithPort(8000),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = srv.RegisterTool(analyticsmcp.NewTool("echo", "Echo the arguments back.",
//	    analyticsmcp.ObjectSchema(nil, nil),
//	    func(ctx context.Context, args map[string]any) (map[string]any, error) {
//	        return map[string]any{"echo": args}, nil
//	    },
//	))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Configuration
//
// Settings resolve in precedence order: functional options, then the
// MCP_* environment variables, then an optional YAML file
// (WithConfigFile), then built-in defaults. See the Env* constants in
// internal/config for the recognized variables.
//
// # Host Trust
//
// Every request's declared Host is evaluated by a TrustPolicy before it
// reaches a transport. The default policy accepts every host and the
// server says so at startup; pass WithAllowedHosts or set
// MCP_ALLOWED_HOSTS to restrict it.
package analyticsmcp
