// Package config loads the YAML configuration shared by the otsync server
// and client executables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/ot/manager"
	"github.com/zeusync/otsync/internal/core/protocol"
)

const (
	TransportWebsocket = "websocket"
	TransportQUIC      = "quic"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root of the YAML configuration file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the sync server listeners.
type ServerConfig struct {
	// HTTPAddr serves /ws, /healthz and /documents/{id}.
	HTTPAddr       string        `yaml:"http_addr"`
	QUICAddr       string        `yaml:"quic_addr"`
	MaxMessageSize int           `yaml:"max_message_size"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	// CertFile and KeyFile are optional; without them QUIC uses a
	// self-signed certificate.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ClientConfig configures how clients reach the server.
type ClientConfig struct {
	Transport          string        `yaml:"transport"`
	ServerAddr         string        `yaml:"server_addr"`
	SyncInterval       time.Duration `yaml:"sync_interval"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// LogConfig selects the log level by name.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration with every field set.
func Default() *Config {
	c := &Config{}
	c.PopulateDefaults()
	return c
}

// Read loads path, fills defaults and validates the result.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Load(bytes.NewReader(data))
}

// Load decodes YAML from r, fills defaults and validates the result. An
// empty document yields the defaults.
func Load(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.PopulateDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// PopulateDefaults fills zero fields.
func (c *Config) PopulateDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.QUICAddr == "" {
		c.Server.QUICAddr = "127.0.0.1:8443"
	}
	if c.Server.MaxMessageSize <= 0 {
		c.Server.MaxMessageSize = protocol.DefaultMaxMessageSize
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = protocol.DefaultReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = protocol.DefaultWriteTimeout
	}

	if c.Client.Transport == "" {
		c.Client.Transport = TransportWebsocket
	}
	if c.Client.ServerAddr == "" {
		if c.Client.Transport == TransportQUIC {
			c.Client.ServerAddr = c.Server.QUICAddr
		} else {
			c.Client.ServerAddr = "ws://" + c.Server.HTTPAddr + "/ws"
		}
	}
	if c.Client.SyncInterval <= 0 {
		c.Client.SyncInterval = manager.DefaultSyncInterval
	}
	if c.Client.RetryDelay <= 0 {
		c.Client.RetryDelay = manager.DefaultRetryDelay
	}
	if c.Client.ConnectTimeout <= 0 {
		c.Client.ConnectTimeout = 10 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Client.Transport {
	case TransportWebsocket, TransportQUIC:
	default:
		return fmt.Errorf("%w: client.transport %q", ErrInvalidConfig, c.Client.Transport)
	}
	if c.Server.MaxMessageSize < 1024 {
		return fmt.Errorf("%w: server.max_message_size %d is below 1024", ErrInvalidConfig, c.Server.MaxMessageSize)
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("%w: server.cert_file and server.key_file go together", ErrInvalidConfig)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.LevelInfo
	}
	return level
}

// Protocol returns the transport settings of the server.
func (s ServerConfig) Protocol() protocol.Config {
	return protocol.Config{
		MaxMessageSize: s.MaxMessageSize,
		ReadTimeout:    s.ReadTimeout,
		WriteTimeout:   s.WriteTimeout,
	}.WithDefaults()
}

// Protocol returns the transport settings of the client.
func (c ClientConfig) Protocol() protocol.Config {
	return protocol.Config{
		WriteTimeout:       c.ConnectTimeout,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}.WithDefaults()
}
