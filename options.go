package analyticsmcp

import (
	"log/slog"
	"time"

	"github.com/wagiedev/analytics-mcp/internal/config"
	"github.com/wagiedev/analytics-mcp/internal/trust"
)

// Mode selects which transports a Server mounts.
type Mode = config.Mode

const (
	// ModeDual mounts the streamable transport at /mcp and the legacy SSE
	// transport at /sse on one listener. This is the default.
	ModeDual = config.ModeDual

	// ModeSSEOnly mounts only the legacy SSE transport, on the SSE address.
	ModeSSEOnly = config.ModeSSEOnly
)

// TrustPolicy decides per request whether a declared Host may be served.
type TrustPolicy = trust.Policy

// TrustDecision is the outcome of one trust evaluation.
type TrustDecision = trust.Decision

// Option configures a Server using the functional options pattern.
// Options take precedence over environment variables and the config file.
type Option func(*serverOptions)

// serverOptions collects everything New needs before config resolution.
type serverOptions struct {
	logger       *slog.Logger
	configFile   string
	policy       trust.Policy
	name         string
	version      string
	instructions string
	overlay      config.Config
	port         *int
}

func applyOptions(opts []Option) *serverOptions {
	options := &serverOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for server output.
// If not set, a text logger on stderr at the configured level is used.
// Use NopLogger for silent operation.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// WithServerInfo sets the name and version advertised to clients during
// initialization.
func WithServerInfo(name, version string) Option {
	return func(o *serverOptions) {
		o.name = name
		o.version = version
	}
}

// WithInstructions sets the usage instructions advertised to clients during
// initialization.
func WithInstructions(instructions string) Option {
	return func(o *serverOptions) {
		o.instructions = instructions
	}
}

// WithConfigFile loads settings from a YAML file. File values rank below
// environment variables and options.
func WithConfigFile(path string) Option {
	return func(o *serverOptions) {
		o.configFile = path
	}
}

// ===== Network Surface =====

// WithHost sets the listen host.
func WithHost(host string) Option {
	return func(o *serverOptions) {
		o.overlay.Host = host
		o.overlay.SSEHost = host
	}
}

// WithPort sets the listen port. Port 0 binds an ephemeral port; read Addr
// after Start to learn which.
func WithPort(port int) Option {
	return func(o *serverOptions) {
		o.port = &port
	}
}

// WithMode selects the transport surface.
func WithMode(mode Mode) Option {
	return func(o *serverOptions) {
		o.overlay.Mode = mode
	}
}

// ===== Trust =====

// WithAllowedHosts restricts serving to requests declaring one of the given
// hosts. Entries match case-insensitively, ignore ports, and may use a
// leading "*." wildcard. An entry of "*" allows every host.
func WithAllowedHosts(hosts ...string) Option {
	return func(o *serverOptions) {
		o.overlay.AllowedHosts = append([]string(nil), hosts...)
	}
}

// WithTrustPolicy installs a custom trust policy, overriding the allowed-host
// list entirely.
func WithTrustPolicy(policy TrustPolicy) Option {
	return func(o *serverOptions) {
		o.policy = policy
	}
}

// ===== Lifecycle =====

// WithDrainTimeout bounds graceful shutdown.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *serverOptions) {
		o.overlay.DrainTimeout = d
	}
}

// WithKeepAliveInterval sets the SSE ping interval.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(o *serverOptions) {
		o.overlay.KeepAliveInterval = d
	}
}
