package errors

import (
	"errors"
	"fmt"
)

// ServerError is the base interface for all analytics MCP server errors.
type ServerError interface {
	error
	IsServerError() bool
}

// Compile-time verification that all error types implement ServerError.
var (
	_ ServerError = (*BindError)(nil)
	_ ServerError = (*RouteError)(nil)
	_ ServerError = (*ToolError)(nil)
	_ ServerError = (*ConfigError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrTrackerNotAccepting indicates the session tracker is not accepting
	// registrations, either because it was never started or already stopped.
	ErrTrackerNotAccepting = errors.New("session tracker not accepting")

	// ErrTrackerStopped indicates the session tracker reached its terminal state.
	// Trackers are single-use; create a new one instead of restarting.
	ErrTrackerStopped = errors.New("session tracker stopped")

	// ErrSessionExists indicates a session with the same id is already registered.
	ErrSessionExists = errors.New("session already registered")

	// ErrRegistryFrozen indicates tool registration was attempted after the
	// registry was frozen. All tools must register before the server starts
	// accepting connections.
	ErrRegistryFrozen = errors.New("tool registry frozen")

	// ErrToolExists indicates a tool with the same name is already registered.
	ErrToolExists = errors.New("tool already registered")

	// ErrToolNotFound indicates an invocation named a tool absent from the registry.
	// Callers should surface this to the client; it is never fatal to the connection.
	ErrToolNotFound = errors.New("tool not found")

	// ErrServerStarted indicates the server has already started accepting.
	ErrServerStarted = errors.New("server already started")

	// ErrServerClosed indicates the server has been shut down and cannot be
	// reused. Servers are single-use; create a new one with New().
	ErrServerClosed = errors.New("server closed")
)

// BindError indicates the network listener could not be bound.
// This is fatal at startup.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// IsServerError implements ServerError.
func (e *BindError) IsServerError() bool { return true }

// RouteError indicates an invalid route binding (empty, duplicate, or
// overlapping path prefix). Detected at construction time, fatal at startup.
type RouteError struct {
	Prefix string
	Err    error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("invalid route %q: %v", e.Prefix, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// IsServerError implements ServerError.
func (e *RouteError) IsServerError() bool { return true }

// ToolError indicates a tool invocation failed. It wraps both lookup failures
// (ErrToolNotFound) and handler failures, carrying the tool name so adapters
// can surface it to the client.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// IsServerError implements ServerError.
func (e *ToolError) IsServerError() bool { return true }

// ConfigError indicates an invalid configuration value.
// Key names the offending setting (environment variable, flag, or file key).
type ConfigError struct {
	Key   string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsServerError implements ServerError.
func (e *ConfigError) IsServerError() bool { return true }
