// Package config handles Stanza configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Live update transports.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// Identity modes.
const (
	AuthModeStatic = "static"
	AuthModeJWT    = "jwt"
)

// Config is the root configuration structure for Stanza.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Live update channel settings
	Live LiveConfig `yaml:"live" mapstructure:"live"`

	// Notification feed settings
	Notifications NotificationsConfig `yaml:"notifications" mapstructure:"notifications"`

	// Identity settings
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Event log retention
	EventRetention EventRetentionConfig `yaml:"event_retention" mapstructure:"event_retention"`
}

// GlobalConfig contains global Stanza settings.
type GlobalConfig struct {
	// DataDir is where Stanza stores its data (default: ~/.local/share/stanza).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config and context files are stored (default: ~/.config/stanza).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// LiveConfig configures the live update channel.
type LiveConfig struct {
	// Transport is memory (single process) or nats.
	Transport string `yaml:"transport" mapstructure:"transport"`

	// NATSURL is the NATS server address for the nats transport.
	NATSURL string `yaml:"nats_url" mapstructure:"nats_url"`

	// SubjectPrefix prefixes every NATS subject.
	SubjectPrefix string `yaml:"subject_prefix" mapstructure:"subject_prefix"`

	// SubscriberBuffer is the initial mailbox capacity of a subscription.
	SubscriberBuffer int `yaml:"subscriber_buffer" mapstructure:"subscriber_buffer"`

	// PersistEvents records published events in the database.
	PersistEvents bool `yaml:"persist_events" mapstructure:"persist_events"`
}

// NotificationsConfig configures the notification feed.
type NotificationsConfig struct {
	// PollInterval is how often the unread count is refreshed.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// ListLimit caps the number of notifications listed.
	ListLimit int `yaml:"list_limit" mapstructure:"list_limit"`

	// PushOverLive publishes new notifications on the live channel.
	PushOverLive bool `yaml:"push_over_live" mapstructure:"push_over_live"`
}

// AuthConfig configures how the current user is resolved.
type AuthConfig struct {
	// Mode is static (trusted user id) or jwt (verified session token).
	Mode string `yaml:"mode" mapstructure:"mode"`

	// UserID is the acting user in static mode.
	UserID string `yaml:"user_id" mapstructure:"user_id"`

	// Token is the session token in jwt mode.
	Token string `yaml:"token" mapstructure:"token"`

	// JWTSecret is the HMAC key session tokens are signed with.
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`

	// JWTIssuer, when set, must match the token's iss claim.
	JWTIssuer string `yaml:"jwt_issuer" mapstructure:"jwt_issuer"`
}

// EventRetentionConfig controls pruning of the persisted event log.
type EventRetentionConfig struct {
	// Enabled turns on pruning.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// MaxAge is how long events are kept.
	MaxAge time.Duration `yaml:"max_age" mapstructure:"max_age"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "stanza"),
			ConfigDir: filepath.Join(homeDir, ".config", "stanza"),
		},
		Database: DatabaseConfig{
			Path:           "", // Will be set to DataDir/stanza.db
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Live: LiveConfig{
			Transport:        TransportMemory,
			SubjectPrefix:    "stanza.events",
			SubscriberBuffer: 64,
		},
		Notifications: NotificationsConfig{
			PollInterval: 60 * time.Second,
			ListLimit:    30,
			PushOverLive: true,
		},
		Auth: AuthConfig{
			Mode: AuthModeStatic,
		},
		EventRetention: EventRetentionConfig{
			MaxAge: 7 * 24 * time.Hour,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}

	switch c.Live.Transport {
	case TransportMemory:
	case TransportNATS:
		if strings.TrimSpace(c.Live.NATSURL) == "" {
			return fmt.Errorf("live.nats_url is required for the nats transport")
		}
		if strings.TrimSpace(c.Live.SubjectPrefix) == "" {
			return fmt.Errorf("live.subject_prefix is required for the nats transport")
		}
	default:
		return fmt.Errorf("live.transport must be one of memory, nats")
	}
	if c.Live.SubscriberBuffer < 1 {
		return fmt.Errorf("live.subscriber_buffer must be at least 1")
	}

	if c.Notifications.PollInterval < time.Second {
		return fmt.Errorf("notifications.poll_interval must be at least 1s")
	}
	if c.Notifications.ListLimit < 1 {
		return fmt.Errorf("notifications.list_limit must be at least 1")
	}

	switch c.Auth.Mode {
	case AuthModeStatic:
	case AuthModeJWT:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required for jwt mode")
		}
	default:
		return fmt.Errorf("auth.mode must be one of static, jwt")
	}

	if c.EventRetention.Enabled && c.EventRetention.MaxAge <= 0 {
		return fmt.Errorf("event_retention.max_age must be positive when retention is enabled")
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "stanza.db")
}

// ContextPath returns the path of the CLI context file.
func (c *Config) ContextPath() string {
	return filepath.Join(c.Global.ConfigDir, "context.yaml")
}
