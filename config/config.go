package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   Server   `mapstructure:"server"`
	Runtime  Runtime  `mapstructure:"runtime"`
	Packages Packages `mapstructure:"packages"`
	Logging  Logging  `mapstructure:"logging"`
	// Languages overrides built-in language rows inline; LanguagesFile
	// points at a standalone YAML language table merged on top.
	Languages     map[string]Language `mapstructure:"languages"`
	LanguagesFile string              `mapstructure:"languages_file"`
}

// Server holds the transport configuration for the HTTP API and the
// optional MCP surface
type Server struct {
	HTTPPort     int    `mapstructure:"http_port"`
	MCPTransport string `mapstructure:"mcp_transport"`
	MCPHTTPPort  int    `mapstructure:"mcp_http_port"`
}

// Runtime holds execution runtime configuration
type Runtime struct {
	StagingRoot    string   `mapstructure:"staging_root"`
	WorkspaceDir   string   `mapstructure:"workspace_dir"`
	TimeoutSec     int      `mapstructure:"timeout_sec"`
	MemoryMB       int64    `mapstructure:"memory_mb"`
	CPUs           float64  `mapstructure:"cpus"`
	MaxConcurrent  int64    `mapstructure:"max_concurrent"`
	RetentionMin   int      `mapstructure:"retention_min"`
	PullImages     []string `mapstructure:"pull_images"`
	PullTimeoutSec int      `mapstructure:"pull_timeout_sec"`
}

// Packages holds package-manager configuration. Package operations run
// in the same sandbox as code execution but need to reach a package
// index, so they carry their own network mode and a longer timeout.
type Packages struct {
	NetworkMode string `mapstructure:"network_mode"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
}

// Logging holds logging configuration
type Logging struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// Language overrides a built-in language table row. Empty fields keep
// the built-in value.
type Language struct {
	Image         string   `mapstructure:"image"`
	RunCommand    string   `mapstructure:"run_command"`
	FileName      string   `mapstructure:"file_name"`
	SetupCommands []string `mapstructure:"setup_commands"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.mcp_transport", "none")
	viper.SetDefault("server.mcp_http_port", 8081)

	viper.SetDefault("runtime.staging_root", "/tmp/runbox/projects")
	viper.SetDefault("runtime.workspace_dir", "/workspace")
	viper.SetDefault("runtime.timeout_sec", 30)
	viper.SetDefault("runtime.memory_mb", 512)
	viper.SetDefault("runtime.cpus", 1.0)
	viper.SetDefault("runtime.max_concurrent", 8)
	viper.SetDefault("runtime.retention_min", 60)
	viper.SetDefault("runtime.pull_images", []string{"node:20-alpine", "python:3.11-slim"})
	viper.SetDefault("runtime.pull_timeout_sec", 20)

	viper.SetDefault("packages.network_mode", "bridge")
	viper.SetDefault("packages.timeout_sec", 120)

	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	switch c.Server.MCPTransport {
	case "none", "stdio", "http":
	default:
		return fmt.Errorf("invalid server.mcp_transport: %s, must be 'none', 'stdio' or 'http'", c.Server.MCPTransport)
	}

	if c.Runtime.StagingRoot == "" {
		return fmt.Errorf("runtime.staging_root must not be empty")
	}

	if c.Runtime.TimeoutSec <= 0 {
		return fmt.Errorf("runtime.timeout_sec must be positive, got: %d", c.Runtime.TimeoutSec)
	}

	if c.Runtime.MemoryMB <= 0 {
		return fmt.Errorf("runtime.memory_mb must be positive, got: %d", c.Runtime.MemoryMB)
	}

	if c.Runtime.CPUs <= 0 {
		return fmt.Errorf("runtime.cpus must be positive, got: %f", c.Runtime.CPUs)
	}

	if c.Runtime.MaxConcurrent <= 0 {
		return fmt.Errorf("runtime.max_concurrent must be positive, got: %d", c.Runtime.MaxConcurrent)
	}

	if c.Runtime.RetentionMin <= 0 {
		return fmt.Errorf("runtime.retention_min must be positive, got: %d", c.Runtime.RetentionMin)
	}

	if c.Packages.NetworkMode != "bridge" && c.Packages.NetworkMode != "none" {
		return fmt.Errorf("invalid packages.network_mode: %s, must be 'bridge' or 'none'", c.Packages.NetworkMode)
	}

	if c.Packages.TimeoutSec <= 0 {
		return fmt.Errorf("packages.timeout_sec must be positive, got: %d", c.Packages.TimeoutSec)
	}

	return nil
}

// ExecutionTimeout returns the code execution timeout as a duration
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Runtime.TimeoutSec) * time.Second
}

// PackageTimeout returns the package operation timeout as a duration
func (c *Config) PackageTimeout() time.Duration {
	return time.Duration(c.Packages.TimeoutSec) * time.Second
}

// Retention returns the stray-container retention window
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Runtime.RetentionMin) * time.Minute
}
