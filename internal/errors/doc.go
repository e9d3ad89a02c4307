// Package errors defines error types for the analytics MCP server.
//
// This package provides structured error types for the failure scenarios of
// the transport coordination and lifecycle layer. All error types support
// error unwrapping and can be checked using errors.Is, errors.As, and errors.AsType.
package errors
