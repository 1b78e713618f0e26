package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/models"
)

var (
	tailTypes    []string
	tailEntities []string
	tailScope    string
	tailSince    string
	pruneOlder   time.Duration
	pruneDryRun  bool
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
	eventsCmd.AddCommand(eventsPruneCmd)

	eventsTailCmd.Flags().StringSliceVar(&tailTypes, "type", nil, "event types to include (e.g. message.inserted)")
	eventsTailCmd.Flags().StringSliceVar(&tailEntities, "entity", nil, "entity types to include (messages, notifications)")
	eventsTailCmd.Flags().StringVar(&tailScope, "scope", "", "conversation or recipient id")
	eventsTailCmd.Flags().StringVar(&tailSince, "since", "", "replay events newer than this duration (e.g. 10m)")

	eventsPruneCmd.Flags().DurationVar(&pruneOlder, "older-than", 0, "prune events older than this (default: event_retention.max_age)")
	eventsPruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "report the cutoff without deleting")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the persisted live update log",
	Long:  "Events are logged when live.persist_events is enabled.",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream logged events as JSON lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		config := DefaultStreamConfig()
		for _, t := range tailTypes {
			config.EventTypes = append(config.EventTypes, models.EventType(t))
		}
		for _, t := range tailEntities {
			config.EntityTypes = append(config.EntityTypes, models.EntityType(t))
		}
		config.ScopeID = tailScope
		if tailSince != "" {
			window, err := time.ParseDuration(tailSince)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			since := time.Now().UTC().Add(-window)
			config.Since = &since
			config.IncludeExisting = true
		}

		return NewEventStreamer(db.NewEventRepository(database), cmd.OutOrStdout(), config).Stream(ctx)
	},
}

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete logged events past the retention age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, time.Minute)
		defer cancel()

		cfg := GetConfig()
		maxAge := pruneOlder
		if maxAge <= 0 {
			maxAge = cfg.EventRetention.MaxAge
		}
		if maxAge <= 0 {
			return fmt.Errorf("no retention age: pass --older-than or set event_retention.max_age")
		}
		cutoff := time.Now().UTC().Add(-maxAge)

		out := cmd.OutOrStdout()
		if pruneDryRun {
			if wantsStructured() {
				return WriteOutput(out, map[string]any{"cutoff": cutoff, "dry_run": true})
			}
			fmt.Fprintf(out, "Would delete events before %s\n", cutoff.Local().Format(time.DateTime))
			return nil
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		deleted, err := db.NewEventRepository(database).DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return err
		}

		if wantsStructured() {
			return WriteOutput(out, map[string]any{"cutoff": cutoff, "deleted": deleted})
		}
		if !IsQuiet() {
			fmt.Fprintf(out, "Deleted %d event(s) before %s\n", deleted, cutoff.Local().Format(time.DateTime))
		}
		return nil
	},
}
