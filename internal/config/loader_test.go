package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := LoadDefault()
	require.NoError(t, err)
	require.Equal(t, TransportMemory, cfg.Live.Transport)
	require.Equal(t, 60*time.Second, cfg.Notifications.PollInterval)
	require.Equal(t, 30, cfg.Notifications.ListLimit)
	require.True(t, cfg.Notifications.PushOverLive)
	require.Equal(t, AuthModeStatic, cfg.Auth.Mode)
	require.Equal(t, filepath.Join(cfg.Global.DataDir, "stanza.db"), cfg.DatabasePath())
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/from-file.db
live:
  transport: nats
  nats_url: nats://localhost:4222
notifications:
  poll_interval: 90s
  list_limit: 10
`), 0o644))

	t.Setenv("STANZA_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("STANZA_LOGGING_LEVEL", "debug")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-env.db", cfg.Database.Path)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, TransportNATS, cfg.Live.Transport)
	require.Equal(t, "nats://localhost:4222", cfg.Live.NATSURL)
	require.Equal(t, 90*time.Second, cfg.Notifications.PollInterval)
	require.Equal(t, 10, cfg.Notifications.ListLimit)
}

func TestLoadFromMissingExplicitFileFails(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Live.Transport = "carrier-pigeon" },
			wantErr: "live.transport",
		},
		{
			name:    "nats without url",
			mutate:  func(c *Config) { c.Live.Transport = TransportNATS },
			wantErr: "live.nats_url",
		},
		{
			name:    "jwt without secret",
			mutate:  func(c *Config) { c.Auth.Mode = AuthModeJWT },
			wantErr: "auth.jwt_secret",
		},
		{
			name:    "poll interval too small",
			mutate:  func(c *Config) { c.Notifications.PollInterval = time.Millisecond },
			wantErr: "notifications.poll_interval",
		},
		{
			name:    "zero list limit",
			mutate:  func(c *Config) { c.Notifications.ListLimit = 0 },
			wantErr: "notifications.list_limit",
		},
		{
			name:    "unknown auth mode",
			mutate:  func(c *Config) { c.Auth.Mode = "oauth" },
			wantErr: "auth.mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEnvVarCoversEverySetting(t *testing.T) {
	require.Equal(t, "STANZA_AUTH_JWT_SECRET", EnvVar("auth.jwt_secret"))

	seen := map[string]bool{}
	for _, s := range settings {
		require.False(t, seen[s.key], "duplicate setting %s", s.key)
		seen[s.key] = true
	}
	require.True(t, seen["event_retention.max_age"])
}

func TestLoadExpandsHomeAndReadsDurationsFromEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("STANZA_DATABASE_PATH", "~/chat/stanza.db")
	t.Setenv("STANZA_NOTIFICATIONS_POLL_INTERVAL", "15s")

	cfg, err := LoadDefault()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "chat", "stanza.db"), cfg.Database.Path)
	require.Equal(t, 15*time.Second, cfg.Notifications.PollInterval)
}
