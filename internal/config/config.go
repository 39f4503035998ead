// Package config provides configuration parsing and validation for a
// tmconn node.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/postalsys/tmconn/internal/identity"
	"github.com/postalsys/tmconn/internal/secretconn"
	"github.com/postalsys/tmconn/internal/transport"
)

// Config represents the complete node configuration.
type Config struct {
	Node      NodeConfig       `yaml:"node"`
	Listeners []ListenerConfig `yaml:"listeners"`
	Peers     []PeerConfig     `yaml:"peers"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	RPC       RPCConfig        `yaml:"rpc"`
}

// NodeConfig defines the local node's identity and protocol settings.
type NodeConfig struct {
	// DataDir holds the identity key. Default: ./data
	DataDir string `yaml:"data_dir"`

	// ProtocolVersion selects the secret connection variant: "v0.33" or
	// "v0.34". Default: v0.34
	ProtocolVersion string `yaml:"protocol_version"`

	// HandshakeTimeout bounds each connection handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// ListenerConfig defines one listening endpoint.
type ListenerConfig struct {
	// Transport is one of: tcp, ws, quic.
	Transport string `yaml:"transport"`

	// Address is the listen address, host:port.
	Address string `yaml:"address"`

	// Path is the HTTP path for the ws transport.
	Path string `yaml:"path"`
}

// PeerConfig defines one outbound peer.
type PeerConfig struct {
	// Transport is one of: tcp, ws, quic.
	Transport string `yaml:"transport"`

	// Address is the peer address.
	Address string `yaml:"address"`

	// ExpectedID, when set, pins the peer's identity (hex public key).
	ExpectedID string `yaml:"expected_id"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig defines the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// RPCConfig defines a JSON-RPC endpoint and optional proxy. The rpc CLI
// commands do not read it; they take both from their own flags.
type RPCConfig struct {
	Endpoint string `yaml:"endpoint"`
	Proxy    string `yaml:"proxy"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.Node.DataDir == "" {
		c.Node.DataDir = "./data"
	}
	if c.Node.ProtocolVersion == "" {
		c.Node.ProtocolVersion = "v0.34"
	}
	if c.Node.HandshakeTimeout <= 0 {
		c.Node.HandshakeTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = "127.0.0.1:9090"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := secretconn.ParseVersion(c.Node.ProtocolVersion); err != nil {
		return fmt.Errorf("node.protocol_version: %w", err)
	}

	for i, l := range c.Listeners {
		if err := validateTransport(l.Transport); err != nil {
			return fmt.Errorf("listeners[%d]: %w", i, err)
		}
		if _, _, err := net.SplitHostPort(l.Address); err != nil {
			return fmt.Errorf("listeners[%d].address %q: %w", i, l.Address, err)
		}
	}

	for i, p := range c.Peers {
		if err := validateTransport(p.Transport); err != nil {
			return fmt.Errorf("peers[%d]: %w", i, err)
		}
		if p.Address == "" {
			return fmt.Errorf("peers[%d]: address is required", i)
		}
		if p.ExpectedID != "" {
			if _, err := identity.ParsePeerID(p.ExpectedID); err != nil {
				return fmt.Errorf("peers[%d].expected_id: %w", i, err)
			}
		}
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			return fmt.Errorf("metrics.address %q: %w", c.Metrics.Address, err)
		}
	}

	return nil
}

// Version returns the parsed protocol version.
func (c *Config) Version() secretconn.Version {
	v, err := secretconn.ParseVersion(c.Node.ProtocolVersion)
	if err != nil {
		// Validate rejects unknown versions before this is reachable.
		return secretconn.V0_34
	}
	return v
}

// Save writes the configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func validateTransport(s string) error {
	switch transport.Type(s) {
	case transport.TypeTCP, transport.TypeWebSocket, transport.TypeQUIC:
		return nil
	case "":
		return fmt.Errorf("transport is required")
	default:
		return fmt.Errorf("unknown transport %q", s)
	}
}
