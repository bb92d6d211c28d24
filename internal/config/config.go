package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Transport names accepted in Config.Transport.
const (
	TransportWebsocket = "websocket"
	TransportGobwas    = "gobwas"
	TransportGorilla   = "gorilla"
)

// Config holds client configuration values.
type Config struct {
	GatewayURL string `mapstructure:"gateway_url" yaml:"gateway_url"`
	Username   string `mapstructure:"username" yaml:"username"`
	// Password is never written to a generated config file.
	Password  string `mapstructure:"password" yaml:"password,omitempty"`
	Transport string `mapstructure:"transport" yaml:"transport"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	// StatusAddr enables the status HTTP server when non-empty.
	StatusAddr string `mapstructure:"status_addr" yaml:"status_addr"`

	DialTimeout     time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ReadLimit       int64         `mapstructure:"read_limit" yaml:"read_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		GatewayURL:      "ws://127.0.0.1:8080/gateway",
		Transport:       TransportWebsocket,
		LogLevel:        "info",
		LogFormat:       "console",
		DialTimeout:     10 * time.Second,
		WriteTimeout:    5 * time.Second,
		ReadLimit:       1 << 20,
		ShutdownTimeout: 5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.GatewayURL != "" {
		c.GatewayURL = other.GatewayURL
	}
	if other.Username != "" {
		c.Username = other.Username
	}
	if other.Password != "" {
		c.Password = other.Password
	}
	if other.Transport != "" {
		c.Transport = other.Transport
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.StatusAddr != "" {
		c.StatusAddr = other.StatusAddr
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.ReadLimit != 0 {
		c.ReadLimit = other.ReadLimit
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}

// Validate checks values that would only fail later at dial time.
// Credentials are checked by the client itself.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.GatewayURL)
	switch {
	case c.GatewayURL == "":
		errs = append(errs, errors.New("gateway_url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("gateway_url: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("gateway_url: unsupported scheme %q, want ws or wss", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("gateway_url: missing host"))
	}

	switch strings.ToLower(c.Transport) {
	case TransportWebsocket, TransportGobwas, TransportGorilla:
	default:
		errs = append(errs, fmt.Errorf("transport: unknown %q", c.Transport))
	}

	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unknown %q", c.LogFormat))
	}

	if c.DialTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.ReadLimit < 0 {
		errs = append(errs, errors.New("read_limit must not be negative"))
	}

	return errors.Join(errs...)
}
