// Package server provides configuration helpers that define runtime defaults,
// validation, and environment overrides for the relay.
package server

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHost            = "127.0.0.1"
	defaultPort            = 55555
	defaultReadBufferSize  = 1024
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds the relay configuration.
type Config struct {
	// Host and Port form the TCP bind address.
	Host string
	Port int
	// WebSocketAddr is the HTTP bind address of the WebSocket listener.
	// Empty disables it.
	WebSocketAddr  string
	AllowedOrigins []string
	// ReadBufferSize bounds a single read; it is also the largest payload a
	// single broadcast can carry.
	ReadBufferSize int
	// WriteTimeout bounds each write to a recipient. Zero disables it.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the wait for a nickname. Zero waits forever.
	HandshakeTimeout time.Duration
	ShutdownTimeout  time.Duration
}

func defaultConfig() Config {
	return Config{
		Host:           defaultHost,
		Port:           defaultPort,
		WebSocketAddr:  "",
		AllowedOrigins: []string{"http://localhost:8080"},
		ReadBufferSize: defaultReadBufferSize,
		WriteTimeout:   defaultWriteTimeout,
		// no handshake deadline unless one is asked for
		HandshakeTimeout: 0,
		ShutdownTimeout:  defaultShutdownTimeout,
	}
}

// sanitizeConfig replaces out-of-range values with defaults and normalizes
// the origin allow-list.
func sanitizeConfig(cfg Config) Config {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		cfg.Port = defaultPort
	}

	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}

	if cfg.WriteTimeout < 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.HandshakeTimeout < 0 {
		cfg.HandshakeTimeout = 0
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set or invalid.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	// Load CHAT_HOST
	if host := os.Getenv("CHAT_HOST"); host != "" {
		cfg.Host = host
	}

	// Load CHAT_PORT
	if port := os.Getenv("CHAT_PORT"); port != "" {
		cfg.Port = parsePort(port, cfg.Port)
	}

	// Load CHAT_WS_ADDR
	if addr := os.Getenv("CHAT_WS_ADDR"); addr != "" {
		cfg.WebSocketAddr = addr
	}

	// Load ALLOWED_ORIGINS
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	// Load READ_BUFFER_SIZE
	if size := os.Getenv("READ_BUFFER_SIZE"); size != "" {
		cfg.ReadBufferSize = parseIntValue(size, cfg.ReadBufferSize)
	}

	// Load WRITE_TIMEOUT
	if timeout := os.Getenv("WRITE_TIMEOUT"); timeout != "" {
		cfg.WriteTimeout = parseSeconds(timeout, cfg.WriteTimeout)
	}

	// Load HANDSHAKE_TIMEOUT
	if timeout := os.Getenv("HANDSHAKE_TIMEOUT"); timeout != "" {
		cfg.HandshakeTimeout = parseSeconds(timeout, cfg.HandshakeTimeout)
	}

	// Load SHUTDOWN_TIMEOUT
	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseSeconds(timeout, cfg.ShutdownTimeout)
	}

	return &cfg
}

// Addr returns the TCP bind address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parsePort(value string, defaultValue int) int {
	if port, err := strconv.Atoi(value); err == nil && port >= 0 && port <= 65535 {
		return port
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseSeconds accepts a whole number of seconds; zero is allowed and
// disables the corresponding timeout.
func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
