package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/models"
	"github.com/stanzahq/stanza/internal/notify"
)

var (
	notifyTo      string
	notifyType    string
	notifyPoem    string
	notifyContent string
)

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyCreateCmd)
	notifyCmd.AddCommand(notifyListCmd)
	notifyCmd.AddCommand(notifyCountCmd)
	notifyCmd.AddCommand(notifyReadCmd)
	notifyCmd.AddCommand(notifyReadAllCmd)

	notifyCreateCmd.Flags().StringVar(&notifyTo, "to", "", "recipient user id or username (required)")
	notifyCreateCmd.Flags().StringVar(&notifyType, "type", "", "like, comment, follow or system (required)")
	notifyCreateCmd.Flags().StringVar(&notifyPoem, "poem", "", "related poem id")
	notifyCreateCmd.Flags().StringVar(&notifyContent, "content", "", "comment text or system message")
	_ = notifyCreateCmd.MarkFlagRequired("to")
	_ = notifyCreateCmd.MarkFlagRequired("type")
}

var notifyCmd = &cobra.Command{
	Use:     "notify",
	Aliases: []string{"notifications"},
	Short:   "Notification feed",
	Long:    "Create and read notifications for the current user.",
}

var notifyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Notify a user of an action by the current user",
	Long: `Create a notification from the current user. Notifying yourself is
accepted and does nothing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		typ, err := models.ParseNotificationType(notifyType)
		if err != nil {
			return models.E("notify.create", models.ErrValidation, err)
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		recipient, err := findProfile(ctx, db.NewProfileRepository(a.db), notifyTo)
		if err != nil {
			return err
		}

		created, err := a.notify.Create(ctx, models.NewNotification{
			RecipientID: recipient.ID,
			SenderID:    a.user.ID,
			PoemID:      notifyPoem,
			Type:        typ,
			Content:     notifyContent,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, created)
		}
		if IsQuiet() {
			return nil
		}
		if created == nil {
			fmt.Fprintln(out, "Skipped: you cannot notify yourself")
			return nil
		}
		fmt.Fprintf(out, "Notified %s: %s\n", recipient.Name(), created.Describe())
		PrintNextSteps(out, HintContext{Action: "notify create", NotificationID: created.ID})
		return nil
	},
}

var notifyListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List your most recent notifications",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.notify.List(ctx, a.user.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(out, "No notifications")
			return nil
		}

		now := time.Now()
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			rows = append(rows, []string{
				unreadMarker(!item.IsRead),
				shortID(item.ID),
				preview(item.Describe()),
				notify.TimeAgo(item.CreatedAt, now),
			})
		}
		return writeTable(out, []string{"", "ID", "NOTIFICATION", "WHEN"}, rows)
	},
}

var notifyCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count unread notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.notify.UnreadCount(ctx, a.user.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, map[string]any{"user_id": a.user.ID, "unread": count})
		}
		fmt.Fprintln(out, count)
		return nil
	},
}

var notifyReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark one notification read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := resolveNotificationID(ctx, a, args[0])
		if err != nil {
			return err
		}
		if err := a.notify.MarkOneRead(ctx, id); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, map[string]any{"notification_id": id, "ok": true})
		}
		if !IsQuiet() {
			fmt.Fprintln(out, "ok")
		}
		return nil
	},
}

var notifyReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.notify.MarkAllRead(ctx, a.user.ID); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, map[string]any{"user_id": a.user.ID, "ok": true})
		}
		if !IsQuiet() {
			fmt.Fprintln(out, "ok")
		}
		return nil
	},
}

// resolveNotificationID expands a short id against the user's listed
// notifications. Unmatched refs are passed through unchanged.
func resolveNotificationID(ctx context.Context, a *app, ref string) (string, error) {
	items, err := a.notify.List(ctx, a.user.ID)
	if err != nil {
		return ref, nil
	}
	var match string
	for _, item := range items {
		if item.ID == ref {
			return ref, nil
		}
		if len(ref) >= 4 && strings.HasPrefix(item.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("notification '%s' is ambiguous; use a longer prefix", ref)
			}
			match = item.ID
		}
	}
	if match != "" {
		return match, nil
	}
	return ref, nil
}
