// Package cli implements the stanza command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanzahq/stanza/internal/config"
	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/identity"
	"github.com/stanzahq/stanza/internal/logging"
)

var (
	cfgFile      string
	dbPathFlag   string
	logLevel     string
	logFormat    string
	jsonOutput   bool
	jsonlOutput  bool
	quiet        bool
	verbose      bool
	noColor      bool
	actAs        string
	sessionToken string

	appConfig    *config.Config
	configLoader *config.Loader
	logCloser    io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "stanza",
	Short: "Direct messages and notifications for Stanza",
	Long: `stanza drives the conversation directory, message store and notification
feed against a local store. Live updates travel over an in-process channel
or a NATS server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			err := logCloser.Close()
			logCloser = nil
			return err
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/stanza/config.yaml)")
	flags.StringVar(&dbPathFlag, "db", "", "database path (default: <data_dir>/stanza.db)")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "log format (json, console)")
	flags.BoolVar(&jsonOutput, "json", false, "output JSON")
	flags.BoolVar(&jsonlOutput, "jsonl", false, "output JSON lines")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.StringVar(&actAs, "as", "", "act as this user id (static identity)")
	flags.StringVar(&sessionToken, "token", "", "session token (jwt identity)")
	flags.Bool("robot-help", false, "machine-readable help output")
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	if hasRobotHelpFlag(os.Args[1:]) {
		printRobotHelp(os.Stdout)
		return nil
	}
	return rootCmd.Execute()
}

func initConfig(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}
	if dbPathFlag != "" {
		loader.Set("database.path", dbPathFlag)
	}
	if logLevel != "" {
		loader.Set("logging.level", logLevel)
	}
	if logFormat != "" {
		loader.Set("logging.format", logFormat)
	}
	if actAs != "" {
		loader.Set("auth.mode", config.AuthModeStatic)
		loader.Set("auth.user_id", actAs)
	}
	if sessionToken != "" {
		loader.Set("auth.mode", config.AuthModeJWT)
		loader.Set("auth.token", sessionToken)
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if dbPathFlag != "" {
		cfg.Database.Path = dbPathFlag
	}
	if verbose && logLevel == "" {
		cfg.Logging.Level = "debug"
	}

	closer, err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		File:         cfg.Logging.File,
		Output:       cmd.ErrOrStderr(),
		EnableCaller: cfg.Logging.EnableCaller,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	appConfig = cfg
	configLoader = loader
	logCloser = closer

	logging.Logger.Debug().
		Str("config_file", loader.ConfigFileUsed()).
		Str("database", cfg.DatabasePath()).
		Str("transport", cfg.Live.Transport).
		Msg("configuration loaded")
	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	if appConfig == nil {
		return config.DefaultConfig()
	}
	return appConfig
}

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool { return jsonOutput }

// IsJSONLOutput reports whether --jsonl was given.
func IsJSONLOutput() bool { return jsonlOutput }

// IsQuiet reports whether --quiet was given.
func IsQuiet() bool { return quiet }

// IsVerbose reports whether --verbose was given.
func IsVerbose() bool { return verbose }

// openDatabase opens the configured store and applies pending migrations.
func openDatabase() (*db.DB, error) {
	cfg := GetConfig()
	if cfg.Database.Path == "" {
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
	}

	database, err := db.Open(db.Config{
		Path:           cfg.DatabasePath(),
		MaxConnections: cfg.Database.MaxConnections,
		BusyTimeoutMs:  cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	if _, err := database.MigrateUp(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

// openLive returns the configured live update channel. The persisted event
// log is attached when live.persist_events is set.
func openLive(database *db.DB) (events.Channel, error) {
	cfg := GetConfig()

	var repo events.Repository
	if cfg.Live.PersistEvents && database != nil {
		repo = db.NewEventRepository(database)
	}

	switch cfg.Live.Transport {
	case config.TransportNATS:
		channel, err := events.ConnectNATS(events.NATSOptions{
			URL:           cfg.Live.NATSURL,
			SubjectPrefix: cfg.Live.SubjectPrefix,
			BufferSize:    cfg.Live.SubscriberBuffer,
			Name:          "stanza-cli",
			Repository:    repo,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", logging.RedactURL(cfg.Live.NATSURL), err)
		}
		return channel, nil
	default:
		opts := []events.PublisherOption{events.WithBufferSize(cfg.Live.SubscriberBuffer)}
		if repo != nil {
			opts = append(opts, events.WithRepository(repo))
		}
		return events.NewInMemoryPublisher(opts...), nil
	}
}

// identityProvider builds the provider for the configured auth mode. In
// static mode without an explicit user the saved context is used.
func identityProvider() (identity.Provider, error) {
	cfg := GetConfig()
	switch cfg.Auth.Mode {
	case config.AuthModeJWT:
		return identity.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.Token)
	default:
		userID := cfg.Auth.UserID
		if strings.TrimSpace(userID) == "" {
			if saved, err := config.NewContextStore(cfg.ContextPath()).Load(); err == nil {
				userID = saved.UserID
			}
		}
		return identity.NewStaticProvider(userID), nil
	}
}

// requireCurrentUser resolves the acting user or explains how to set one.
func requireCurrentUser(ctx context.Context) (*identity.User, error) {
	provider, err := identityProvider()
	if err != nil {
		return nil, err
	}
	user, err := provider.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			return nil, fmt.Errorf("no current user: pass --as <user-id>, --token <token>, or run 'stanza use <user>'")
		}
		return nil, err
	}
	return user, nil
}

// commandContext returns a context bounded by timeout for one-shot commands.
func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}
