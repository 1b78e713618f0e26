package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader resolves a Config from defaults, an optional YAML file, STANZA_*
// environment variables and flag overrides, in increasing precedence.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader returns a Loader with its own viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// SetConfigFile pins the config file. A pinned file must exist.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load resolves and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.prepare(cfg)

	if err := l.readFile(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for _, path := range []*string{&cfg.Global.DataDir, &cfg.Global.ConfigDir, &cfg.Database.Path, &cfg.Logging.File} {
		*path = expandHome(*path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the file Load read, or "".
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set overrides a key, e.g. from a command line flag.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Settings returns every resolved key as a nested map.
func (l *Loader) Settings() map[string]any {
	return l.v.AllSettings()
}

// LoadFromFile loads configuration from path.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration from the usual search paths.
func LoadDefault() (*Config, error) {
	return NewLoader().Load()
}

// settings lists every configurable key with its default. Each key also
// reads STANZA_<KEY> from the environment, dots becoming underscores.
var settings = []struct {
	key string
	def func(*Config) any
}{
	{"global.data_dir", func(c *Config) any { return c.Global.DataDir }},
	{"global.config_dir", func(c *Config) any { return c.Global.ConfigDir }},
	{"database.path", func(c *Config) any { return c.Database.Path }},
	{"database.max_connections", func(c *Config) any { return c.Database.MaxConnections }},
	{"database.busy_timeout_ms", func(c *Config) any { return c.Database.BusyTimeoutMs }},
	{"logging.level", func(c *Config) any { return c.Logging.Level }},
	{"logging.format", func(c *Config) any { return c.Logging.Format }},
	{"logging.file", func(c *Config) any { return c.Logging.File }},
	{"logging.enable_caller", func(c *Config) any { return c.Logging.EnableCaller }},
	{"live.transport", func(c *Config) any { return c.Live.Transport }},
	{"live.nats_url", func(c *Config) any { return c.Live.NATSURL }},
	{"live.subject_prefix", func(c *Config) any { return c.Live.SubjectPrefix }},
	{"live.subscriber_buffer", func(c *Config) any { return c.Live.SubscriberBuffer }},
	{"live.persist_events", func(c *Config) any { return c.Live.PersistEvents }},
	{"notifications.poll_interval", func(c *Config) any { return c.Notifications.PollInterval }},
	{"notifications.list_limit", func(c *Config) any { return c.Notifications.ListLimit }},
	{"notifications.push_over_live", func(c *Config) any { return c.Notifications.PushOverLive }},
	{"auth.mode", func(c *Config) any { return c.Auth.Mode }},
	{"auth.user_id", func(c *Config) any { return c.Auth.UserID }},
	{"auth.token", func(c *Config) any { return c.Auth.Token }},
	{"auth.jwt_secret", func(c *Config) any { return c.Auth.JWTSecret }},
	{"auth.jwt_issuer", func(c *Config) any { return c.Auth.JWTIssuer }},
	{"event_retention.enabled", func(c *Config) any { return c.EventRetention.Enabled }},
	{"event_retention.max_age", func(c *Config) any { return c.EventRetention.MaxAge }},
}

// EnvVar returns the environment variable that overrides key.
func EnvVar(key string) string {
	return "STANZA_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func (l *Loader) prepare(cfg *Config) {
	v := l.v
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, "stanza"))
	}
	if home, _ := os.UserHomeDir(); home != "" {
		v.AddConfigPath(filepath.Join(home, ".config", "stanza"))
	}
	v.AddConfigPath(".")

	// Explicit bindings make nested keys visible to Unmarshal.
	for _, s := range settings {
		v.SetDefault(s.key, s.def(cfg))
		_ = v.BindEnv(s.key, EnvVar(s.key))
	}
}

// readFile loads the config file. A missing file is only an error when it
// was pinned with SetConfigFile.
func (l *Loader) readFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}
	err := l.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
