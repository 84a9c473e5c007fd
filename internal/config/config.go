// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// CORTEX_AGENT_URL overrides agent.url.
const EnvPrefix = "CORTEX"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Agent() AgentConfig
	Reconnect() ReconnectConfig
	Store() StoreConfig

	// CLI flag overrides.
	SetAgentURL(string)
	SetStoreDir(string)
}

// Config holds the entire application configuration. It uses private fields
// to enforce access through the Interface's getter methods.
type Config struct {
	logger    LoggerConfig
	agent     AgentConfig
	reconnect ReconnectConfig
	store     StoreConfig
}

// fileConfig is the decode target for viper. mapstructure sets fields through
// reflection and therefore needs them exported; the values are copied into
// the private-field Config immediately after decoding.
type fileConfig struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Reconnect ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
}

func (fc fileConfig) toConfig() *Config {
	return &Config{
		logger:    fc.Logger,
		agent:     fc.Agent,
		reconnect: fc.Reconnect,
		store:     fc.Store,
	}
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.logger }
func (c *Config) Agent() AgentConfig         { return c.agent }
func (c *Config) Reconnect() ReconnectConfig { return c.reconnect }
func (c *Config) Store() StoreConfig         { return c.store }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetAgentURL(u string) { c.agent.URL = u }
func (c *Config) SetStoreDir(d string) { c.store.Dir = d }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// AgentConfig holds settings for the remote agent backend connection.
type AgentConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	// ExecutingDelay is how long the session waits after a submission
	// before optimistically reporting the agent as executing.
	ExecutingDelay time.Duration `mapstructure:"executing_delay" yaml:"executing_delay"`
}

// ReconnectConfig tunes the connection supervisor.
type ReconnectConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// MaxAttempts bounds consecutive failed redials. Zero means retry
	// forever.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// StoreConfig locates the on-disk conversation store.
type StoreConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	Key string `mapstructure:"key" yaml:"key"`
}

// DefaultStoreDir returns the per-user conversation directory, falling back
// to a relative path when the home directory cannot be resolved.
func DefaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cortex"
	}
	return filepath.Join(home, ".cortex")
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return fc.toConfig()
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cortex")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Agent --
	v.SetDefault("agent.url", "ws://localhost:8000/ws/agent")
	v.SetDefault("agent.handshake_timeout", "10s")
	v.SetDefault("agent.executing_delay", "1500ms")

	// -- Reconnect --
	v.SetDefault("reconnect.interval", "5s")
	v.SetDefault("reconnect.max_attempts", 0)

	// -- Store --
	v.SetDefault("store.dir", DefaultStoreDir())
	v.SetDefault("store.key", "cortex-chats")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg := fc.toConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.agent.URL == "" {
		return fmt.Errorf("agent.url is a required configuration field")
	}
	u, err := url.Parse(c.agent.URL)
	if err != nil {
		return fmt.Errorf("agent.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("agent.url must use the ws or wss scheme, got %q", u.Scheme)
	}
	if c.agent.ExecutingDelay <= 0 {
		return fmt.Errorf("agent.executing_delay must be a positive duration")
	}
	if c.reconnect.Interval <= 0 {
		return fmt.Errorf("reconnect.interval must be a positive duration")
	}
	if c.reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must not be negative")
	}
	if c.store.Key == "" {
		return fmt.Errorf("store.key is a required configuration field")
	}
	return nil
}
