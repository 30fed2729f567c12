// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable [Load] reads.
const EnvVar = "UMLAUT_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for a workstation running its own server.
	Development Environment = "development"
	// Production is for a shared server.
	Production Environment = "production"
)

// Store backends accepted in ServerConfig.Store.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Spool compression names accepted in ClientConfig.SpoolCompression.
const (
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
	CompressionNone = "none"
)

// Config is the master configuration shared by every umlaut binary.
// Each binary reads the section it needs.
type Config struct {
	Environment Environment `yaml:"environment"`

	// Root is the base directory for server state and exports.
	Root string `yaml:"root"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Dashboard DashboardConfig `yaml:"dashboard"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	LogLevel string        `yaml:"log_level,omitempty"`
	Server   *ServerConfig `yaml:"server,omitempty"`
	Client   *ClientConfig `yaml:"client,omitempty"`
}

// ServerConfig configures umlaut-server.
type ServerConfig struct {
	// Listen is the TCP listen address.
	// Default: :8888
	Listen string `yaml:"listen"`

	// Store selects the backend: sqlite or redis.
	// Default: sqlite
	Store string `yaml:"store"`

	// SQLitePath is the database file for the sqlite backend.
	// Default: ${UMLAUT_ROOT}/umlaut.db
	SQLitePath string `yaml:"sqlite_path"`

	// RedisURL is required when Store is redis.
	RedisURL string `yaml:"redis_url"`

	// RedisPrefix namespaces Redis keys.
	// Default: umlaut:
	RedisPrefix string `yaml:"redis_prefix"`

	// MaxBodyBytes caps request bodies.
	// Default: 4 MiB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// ShutdownTimeout bounds the graceful drain of in-flight requests.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ClientConfig configures the telemetry client embedded in training
// programs and the replay command.
type ClientConfig struct {
	// Host is the server address, with or without scheme.
	// Default: localhost:8888
	Host string `yaml:"host"`

	// Timeout bounds each request.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// BufferMaxBytes bounds the outgoing batch buffer.
	// Default: 8 MiB
	BufferMaxBytes int `yaml:"buffer_max_bytes"`

	// Offline disables all network I/O.
	Offline bool `yaml:"offline"`

	// SpoolPath, when set in offline mode, journals every batch.
	SpoolPath string `yaml:"spool_path"`

	// SpoolCompression is zstd, lz4 or none.
	// Default: zstd
	SpoolCompression string `yaml:"spool_compression"`

	// ChannelOrder is channels_last or channels_first.
	// Default: channels_last
	ChannelOrder string `yaml:"channel_order"`
}

// DashboardConfig configures umlaut-dashboard and the umlaut CLI.
type DashboardConfig struct {
	// Server is the umlaut-server base URL.
	// Default: http://localhost:8888
	Server string `yaml:"server"`

	// PollInterval is the refresh period.
	// Default: 10s
	PollInterval time.Duration `yaml:"poll_interval"`

	// ExportDir receives PNG exports.
	// Default: ${UMLAUT_ROOT}/exports
	ExportDir string `yaml:"export_dir"`
}

// Default returns the default configuration. Loaded files are merged
// on top of it.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".cache", "umlaut")

	return &Config{
		Environment: Development,
		Root:        root,
		LogLevel:    "info",
		Server: ServerConfig{
			Listen:          ":8888",
			Store:           StoreSQLite,
			SQLitePath:      filepath.Join(root, "umlaut.db"),
			RedisPrefix:     "umlaut:",
			MaxBodyBytes:    4 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			Host:             "localhost:8888",
			Timeout:          5 * time.Second,
			BufferMaxBytes:   8 << 20,
			SpoolCompression: CompressionZstd,
			ChannelOrder:     "channels_last",
		},
		Dashboard: DashboardConfig{
			Server:       "http://localhost:8888",
			PollInterval: 10 * time.Second,
			ExportDir:    filepath.Join(root, "exports"),
		},
	}
}

// Resolve loads path when non-empty, else the file named by
// UMLAUT_CONFIG, else returns [Default].
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvVar) != "" {
		return Load()
	}
	cfg := Default()
	return cfg, cfg.Validate()
}

// Load loads configuration from the UMLAUT_CONFIG environment
// variable. It fails when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your umlaut.yaml, or use --config", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies environment
// overrides, expands path variables and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}
	if server := overrides.Server; server != nil {
		if server.Listen != "" {
			c.Server.Listen = server.Listen
		}
		if server.Store != "" {
			c.Server.Store = server.Store
		}
		if server.SQLitePath != "" {
			c.Server.SQLitePath = server.SQLitePath
		}
		if server.RedisURL != "" {
			c.Server.RedisURL = server.RedisURL
		}
		if server.RedisPrefix != "" {
			c.Server.RedisPrefix = server.RedisPrefix
		}
		if server.MaxBodyBytes != 0 {
			c.Server.MaxBodyBytes = server.MaxBodyBytes
		}
		if server.ShutdownTimeout != 0 {
			c.Server.ShutdownTimeout = server.ShutdownTimeout
		}
	}
	if client := overrides.Client; client != nil {
		if client.Host != "" {
			c.Client.Host = client.Host
		}
		if client.Timeout != 0 {
			c.Client.Timeout = client.Timeout
		}
		if client.BufferMaxBytes != 0 {
			c.Client.BufferMaxBytes = client.BufferMaxBytes
		}
		// Offline is a bool, so the override always applies.
		c.Client.Offline = client.Offline
		if client.SpoolPath != "" {
			c.Client.SpoolPath = client.SpoolPath
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"UMLAUT_ROOT": c.Root,
		"HOME":        os.Getenv("HOME"),
	}
	c.Root = expandVars(c.Root, vars)
	vars["UMLAUT_ROOT"] = c.Root

	c.Server.SQLitePath = expandVars(c.Server.SQLitePath, vars)
	c.Client.SpoolPath = expandVars(c.Client.SpoolPath, vars)
	c.Dashboard.ExportDir = expandVars(c.Dashboard.ExportDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem is
// reported, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log_level: %q", c.LogLevel))
	}

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	switch c.Server.Store {
	case StoreSQLite:
		if c.Server.SQLitePath == "" {
			errs = append(errs, errors.New("server.sqlite_path is required for the sqlite store"))
		}
	case StoreRedis:
		if c.Server.RedisURL == "" {
			errs = append(errs, errors.New("server.redis_url is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid server.store: %q (want sqlite or redis)", c.Server.Store))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}

	if c.Client.Timeout <= 0 {
		errs = append(errs, errors.New("client.timeout must be positive"))
	}
	if c.Client.BufferMaxBytes <= 0 {
		errs = append(errs, errors.New("client.buffer_max_bytes must be positive"))
	}
	switch c.Client.SpoolCompression {
	case CompressionZstd, CompressionLZ4, CompressionNone:
	default:
		errs = append(errs, fmt.Errorf("invalid client.spool_compression: %q", c.Client.SpoolCompression))
	}
	switch c.Client.ChannelOrder {
	case "channels_last", "channels_first":
	default:
		errs = append(errs, fmt.Errorf("invalid client.channel_order: %q", c.Client.ChannelOrder))
	}

	if c.Dashboard.PollInterval <= 0 {
		errs = append(errs, errors.New("dashboard.poll_interval must be positive"))
	}

	return errors.Join(errs...)
}
