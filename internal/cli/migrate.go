package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanzahq/stanza/internal/db"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, time.Minute)
		defer cancel()

		cfg := GetConfig()
		if cfg.Database.Path == "" {
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
		}
		database, err := db.Open(db.Config{
			Path:           cfg.DatabasePath(),
			MaxConnections: cfg.Database.MaxConnections,
			BusyTimeoutMs:  cfg.Database.BusyTimeoutMs,
		})
		if err != nil {
			return err
		}
		defer database.Close()

		applied, err := database.MigrateUp(ctx)
		if err != nil {
			return err
		}
		version, err := database.SchemaVersion(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, map[string]any{"applied": applied, "version": version, "path": database.Path()})
		}
		if !IsQuiet() {
			fmt.Fprintf(out, "Applied %d migration(s); schema version %d (%s)\n", applied, version, database.Path())
		}
		return nil
	},
}
