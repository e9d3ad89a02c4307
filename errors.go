package analyticsmcp

import "github.com/wagiedev/analytics-mcp/internal/errors"

// Re-export error types from internal package

// BindError indicates the listener could not bind its address.
type BindError = errors.BindError

// RouteError indicates an invalid or conflicting route binding.
type RouteError = errors.RouteError

// ToolError indicates a tool registration or invocation failure.
type ToolError = errors.ToolError

// ConfigError indicates an invalid configuration value.
type ConfigError = errors.ConfigError

// ServerError is the base interface for all errors produced by this module.
type ServerError = errors.ServerError

// Re-export sentinel errors from internal package.
var (
	// ErrServerStarted indicates an operation that requires a not-yet-started server.
	ErrServerStarted = errors.ErrServerStarted

	// ErrServerClosed indicates the server has been shut down and cannot be reused.
	ErrServerClosed = errors.ErrServerClosed

	// ErrToolExists indicates a duplicate tool name at registration.
	ErrToolExists = errors.ErrToolExists

	// ErrToolNotFound indicates an invocation of an unregistered tool.
	ErrToolNotFound = errors.ErrToolNotFound

	// ErrRegistryFrozen indicates a registration after the server started.
	ErrRegistryFrozen = errors.ErrRegistryFrozen

	// ErrTrackerNotAccepting indicates a session arrived outside the accepting window.
	ErrTrackerNotAccepting = errors.ErrTrackerNotAccepting

	// ErrSessionExists indicates a duplicate session id.
	ErrSessionExists = errors.ErrSessionExists
)
