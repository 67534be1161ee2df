package protocol

import "time"

// Package defaults
const (
	// DefaultMaxMessageSize is the default maximum frame size in bytes
	DefaultMaxMessageSize = 1024 * 1024 // 1MB

	DefaultReadTimeout  = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the default QUIC connection idle timeout
	DefaultIdleTimeout = 30 * time.Second
)

// Config holds transport settings shared by websocket and quic.
type Config struct {
	MaxMessageSize int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration

	// InsecureSkipVerify disables certificate checks on the client. Only for
	// the self-signed development certificate.
	InsecureSkipVerify bool
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize: DefaultMaxMessageSize,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		IdleTimeout:    DefaultIdleTimeout,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	return c
}
