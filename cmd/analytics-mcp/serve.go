package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	analyticsmcp "github.com/wagiedev/analytics-mcp"
	"github.com/wagiedev/analytics-mcp/internal/telemetry"
)

// newServeCmd creates the "serve" subcommand: both transports on one listener.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server with both transports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, analyticsmcp.ModeDual)
		},
	}
	addServeFlags(cmd)

	return cmd
}

// newServeSSECmd creates the "serve-sse" subcommand: the legacy transport
// only, for clients that cannot speak the streamable protocol.
func newServeSSECmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-sse",
		Short: "Start the MCP server with only the legacy SSE transport",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, analyticsmcp.ModeSSEOnly)
		},
	}
	addServeFlags(cmd)

	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "Listen host (default from MCP_HOST)")
	cmd.Flags().IntP("port", "p", 0, "Listen port (default from MCP_PORT)")
	cmd.Flags().String("config", "", "Path to a YAML config file")
	cmd.Flags().StringArray("allowed-host", nil, "Host allowed by the trust policy (repeatable; default: all)")
	cmd.Flags().Duration("drain-timeout", 0, "Graceful shutdown window")
	cmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().Bool("log-json", false, "Emit logs as JSON")
}

func runServe(cmd *cobra.Command, mode analyticsmcp.Mode) error {
	logLevelName, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	logger := newLogger(logLevelName, logJSON)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	opts := []analyticsmcp.Option{
		analyticsmcp.WithLogger(logger),
		analyticsmcp.WithMode(mode),
		analyticsmcp.WithServerInfo("analytics-mcp", version),
	}

	// Only pass flags the caller set, so the env and config-file layers keep
	// their place in the precedence order.
	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		opts = append(opts, analyticsmcp.WithHost(host))
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		opts = append(opts, analyticsmcp.WithPort(port))
	}
	if cmd.Flags().Changed("config") {
		path, _ := cmd.Flags().GetString("config")
		opts = append(opts, analyticsmcp.WithConfigFile(path))
	}
	if cmd.Flags().Changed("allowed-host") {
		hosts, _ := cmd.Flags().GetStringArray("allowed-host")
		opts = append(opts, analyticsmcp.WithAllowedHosts(hosts...))
	}
	if cmd.Flags().Changed("drain-timeout") {
		d, _ := cmd.Flags().GetDuration("drain-timeout")
		opts = append(opts, analyticsmcp.WithDrainTimeout(d))
	}

	srv, err := analyticsmcp.New(opts...)
	if err != nil {
		return err
	}

	if err := srv.RegisterTool(demoTools()...); err != nil {
		return err
	}

	return srv.Run(ctx)
}

func newLogger(level string, asJSON bool) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: slogLevel}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
}

// demoTools is the built-in toolset: stand-ins until an embedder registers
// real analytics tools.
func demoTools() []analyticsmcp.Tool {
	echo := analyticsmcp.NewTool("echo", "Returns the provided arguments unchanged.",
		analyticsmcp.ObjectSchema(nil, nil),
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"echo": args}, nil
		},
	)

	serverTime := analyticsmcp.NewTool("server_time", "Returns the server's current time.",
		analyticsmcp.ObjectSchema(map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name, e.g. America/New_York. Defaults to UTC.",
			},
		}, nil),
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			loc := time.UTC
			if tz, ok := args["timezone"].(string); ok && tz != "" {
				parsed, err := time.LoadLocation(tz)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q", tz)
				}
				loc = parsed
			}

			now := time.Now().In(loc)

			return map[string]any{
				"time":     now.Format(time.RFC3339),
				"timezone": loc.String(),
				"unix":     now.Unix(),
			}, nil
		},
	)

	return []analyticsmcp.Tool{echo, serverTime}
}
