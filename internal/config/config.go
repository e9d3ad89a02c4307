// Package config holds server configuration and its resolution from
// environment variables and an optional YAML file.
//
// Precedence, lowest to highest: built-in defaults, YAML file, environment,
// functional options applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	srverrors "github.com/wagiedev/analytics-mcp/internal/errors"
)

// Mode selects which transports the server mounts.
type Mode string

const (
	// ModeDual mounts the streamable transport at /mcp and the legacy SSE
	// transport at /sse on one listener. This is the default.
	ModeDual Mode = "dual"

	// ModeSSEOnly mounts only the legacy SSE transport, on the SSE
	// address. Kept for clients that cannot speak the streamable protocol.
	ModeSSEOnly Mode = "sse-only"
)

// Defaults for the network surface. The SSE-only deployment binds loopback
// unless told otherwise, since it exists for local legacy clients.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 8000
	DefaultSSEHost           = "127.0.0.1"
	DefaultDrainTimeout      = 10 * time.Second
	DefaultKeepAliveInterval = 15 * time.Second
)

// Environment variable names recognized by FromEnv.
const (
	EnvHost         = "MCP_HOST"
	EnvPort         = "MCP_PORT"
	EnvSSEHost      = "MCP_SSE_HOST"
	EnvSSEPort      = "MCP_SSE_PORT"
	EnvAllowedHosts = "MCP_ALLOWED_HOSTS"
	EnvDrainTimeout = "MCP_DRAIN_TIMEOUT"
)

// Config is the resolved server configuration.
type Config struct {
	// Host and Port form the dual-transport listen address.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// SSEHost and SSEPort form the listen address in SSE-only mode.
	SSEHost string `yaml:"sse_host"`
	SSEPort int    `yaml:"sse_port"`

	// Mode selects the transport surface. Defaults to ModeDual.
	Mode Mode `yaml:"mode"`

	// AllowedHosts is the declared-host allow set for the trust policy.
	// Empty, or any entry equal to "*", means every declared host is accepted.
	AllowedHosts []string `yaml:"allowed_hosts"`

	// DrainTimeout bounds graceful shutdown before remaining connections
	// are closed forcibly.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// KeepAliveInterval is the SSE ping interval.
	KeepAliveInterval time.Duration `yaml:"keep_alive"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// FromEnv builds a Config from the process environment. Unset variables leave
// the corresponding field zero so later layers can fill them. The SSE address
// falls back through the dual-transport variables, matching the deployment
// convention of running both entrypoints from one environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Host:    os.Getenv(EnvHost),
		SSEHost: os.Getenv(EnvSSEHost),
	}
	if cfg.SSEHost == "" {
		cfg.SSEHost = cfg.Host
	}

	port, err := envPort(EnvPort)
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	ssePort, err := envPort(EnvSSEPort)
	if err != nil {
		return nil, err
	}
	if ssePort == 0 {
		ssePort = port
	}
	cfg.SSEPort = ssePort

	if raw := os.Getenv(EnvAllowedHosts); raw != "" {
		cfg.AllowedHosts = splitHostList(raw)
	}

	if raw := os.Getenv(EnvDrainTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, &srverrors.ConfigError{Key: EnvDrainTimeout, Value: raw, Err: err}
		}
		cfg.DrainTimeout = d
	}

	return cfg, nil
}

// LoadFile reads a YAML config file. Unknown keys are rejected so typos
// surface at startup instead of silently falling back to defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &srverrors.ConfigError{Key: "config file", Value: path, Err: err}
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &srverrors.ConfigError{Key: "config file", Value: path, Err: err}
	}

	return cfg, nil
}

// Overlay copies every non-zero field of over onto c.
func (c *Config) Overlay(over *Config) {
	if over == nil {
		return
	}
	if over.Host != "" {
		c.Host = over.Host
	}
	if over.Port != 0 {
		c.Port = over.Port
	}
	if over.SSEHost != "" {
		c.SSEHost = over.SSEHost
	}
	if over.SSEPort != 0 {
		c.SSEPort = over.SSEPort
	}
	if over.Mode != "" {
		c.Mode = over.Mode
	}
	if len(over.AllowedHosts) > 0 {
		c.AllowedHosts = append([]string(nil), over.AllowedHosts...)
	}
	if over.DrainTimeout != 0 {
		c.DrainTimeout = over.DrainTimeout
	}
	if over.KeepAliveInterval != 0 {
		c.KeepAliveInterval = over.KeepAliveInterval
	}
	if over.LogLevel != "" {
		c.LogLevel = over.LogLevel
	}
}

// ApplyDefaults fills any field still unset after all layers.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.SSEHost == "" {
		c.SSEHost = DefaultSSEHost
	}
	if c.SSEPort == 0 {
		c.SSEPort = c.Port
	}
	if c.Mode == "" {
		c.Mode = ModeDual
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the fully resolved configuration.
func (c *Config) Validate() error {
	// Port 0 requests an ephemeral port from the kernel.
	if c.Port < 0 || c.Port > 65535 {
		return &srverrors.ConfigError{Key: "port", Value: strconv.Itoa(c.Port), Err: fmt.Errorf("out of range 0-65535")}
	}
	if c.SSEPort < 0 || c.SSEPort > 65535 {
		return &srverrors.ConfigError{Key: "sse_port", Value: strconv.Itoa(c.SSEPort), Err: fmt.Errorf("out of range 0-65535")}
	}
	if c.Mode != ModeDual && c.Mode != ModeSSEOnly {
		return &srverrors.ConfigError{Key: "mode", Value: string(c.Mode), Err: fmt.Errorf("must be %q or %q", ModeDual, ModeSSEOnly)}
	}
	if c.DrainTimeout <= 0 {
		return &srverrors.ConfigError{Key: "drain_timeout", Value: c.DrainTimeout.String(), Err: fmt.Errorf("must be positive")}
	}
	if c.KeepAliveInterval <= 0 {
		return &srverrors.ConfigError{Key: "keep_alive", Value: c.KeepAliveInterval.String(), Err: fmt.Errorf("must be positive")}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &srverrors.ConfigError{Key: "log_level", Value: c.LogLevel, Err: fmt.Errorf("must be debug, info, warn, or error")}
	}

	return nil
}

// Addr returns the listen address for the selected mode.
func (c *Config) Addr() string {
	if c.Mode == ModeSSEOnly {
		return net.JoinHostPort(c.SSEHost, strconv.Itoa(c.SSEPort))
	}

	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Permissive reports whether the allow set accepts every declared host.
func (c *Config) Permissive() bool {
	if len(c.AllowedHosts) == 0 {
		return true
	}
	for _, h := range c.AllowedHosts {
		if h == "*" {
			return true
		}
	}

	return false
}

func envPort(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}

	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		if err == nil {
			err = fmt.Errorf("out of range 1-65535")
		}

		return 0, &srverrors.ConfigError{Key: key, Value: raw, Err: err}
	}

	return port, nil
}

func splitHostList(raw string) []string {
	var hosts []string
	for _, part := range strings.Split(raw, ",") {
		if h := strings.TrimSpace(part); h != "" {
			hosts = append(hosts, h)
		}
	}

	return hosts
}
