package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanzahq/stanza/internal/config"
	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/logging"
	"github.com/stanzahq/stanza/internal/models"
	"github.com/stanzahq/stanza/internal/notify"
)

var (
	historyAfter int64
	historyLimit int
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.AddCommand(chatOpenCmd)
	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatHistoryCmd)
	chatCmd.AddCommand(chatReadCmd)
	chatCmd.AddCommand(chatUnreadCmd)

	chatHistoryCmd.Flags().Int64Var(&historyAfter, "after", 0, "only messages after this sequence number")
	chatHistoryCmd.Flags().IntVar(&historyLimit, "limit", 0, "show at most the last N messages")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Direct conversations",
	Long:  "Open, list, read and write direct conversations as the current user.",
}

var chatOpenCmd = &cobra.Command{
	Use:   "open <user>",
	Short: "Open (or start) the conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		other, err := findProfile(ctx, db.NewProfileRepository(a.db), args[0])
		if err != nil {
			return err
		}
		conversation, err := a.chat.GetOrCreate(ctx, a.user.ID, other.ID)
		if err != nil {
			return err
		}

		saveConversationContext(conversation.ID)

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, conversation)
		}
		if IsQuiet() {
			fmt.Fprintln(out, conversation.ID)
			return nil
		}
		fmt.Fprintf(out, "Conversation %s with %s\n", shortID(conversation.ID), other.Name())
		PrintNextSteps(out, HintContext{Action: "chat open", ConversationID: conversation.ID, Username: other.Username})
		return nil
	},
}

var chatListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List your conversations, most recent first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summaries, err := a.chat.ListForUser(ctx, a.user.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, summaries)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(out, "No conversations yet")
			return nil
		}

		now := time.Now()
		rows := make([][]string, 0, len(summaries))
		for _, summary := range summaries {
			last := render(mutedStyle, "(no messages)")
			if summary.LastMessage != nil {
				last = preview(summary.LastMessage.Content)
				if summary.LastMessage.SenderID == a.user.ID {
					last = "You: " + last
				}
			}
			rows = append(rows, []string{
				unreadMarker(summary.UnreadCount > 0),
				shortID(summary.ID),
				summary.Other.Name(),
				last,
				strconv.Itoa(summary.UnreadCount),
				notify.TimeAgo(summary.UpdatedAt, now),
			})
		}
		return writeTable(out, []string{"", "ID", "WITH", "LAST MESSAGE", "UNREAD", "ACTIVE"}, rows)
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <conversation> [text]",
	Short: "Send a message",
	Long: `Send a message to a conversation. The conversation may be given by id, id
prefix, or the other participant's username. Without text the message is
read from stdin.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		text, err := messageText(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summaries, err := a.chat.ListForUser(ctx, a.user.ID)
		if err != nil {
			return err
		}
		summary, err := findConversation(summaries, args[0])
		if err != nil {
			return err
		}

		msg, err := a.chat.Append(ctx, summary.ID, a.user.ID, text)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, msg)
		}
		if !IsQuiet() {
			fmt.Fprintf(out, "Sent to %s (#%d)\n", summary.Other.Name(), msg.Seq)
		}
		return nil
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history [conversation]",
	Short: "Show a conversation's messages",
	Long:  "Show messages in order and mark the other participant's messages read.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summaries, err := a.chat.ListForUser(ctx, a.user.ID)
		if err != nil {
			return err
		}
		summary, err := findConversation(summaries, firstArg(args))
		if err != nil {
			return err
		}

		messages, err := a.chat.ListMessagesAfter(ctx, summary.ID, historyAfter)
		if err != nil {
			return err
		}
		if historyLimit > 0 && len(messages) > historyLimit {
			messages = messages[len(messages)-historyLimit:]
		}
		if _, err := a.chat.MarkRead(ctx, summary.ID, a.user.ID); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, messages)
		}
		if len(messages) == 0 {
			fmt.Fprintln(out, "No messages yet")
			return nil
		}
		for _, msg := range messages {
			fmt.Fprintln(out, formatMessage(msg, a.user.ID))
		}
		return nil
	},
}

var chatReadCmd = &cobra.Command{
	Use:   "read [conversation]",
	Short: "Mark a conversation read",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summaries, err := a.chat.ListForUser(ctx, a.user.ID)
		if err != nil {
			return err
		}
		summary, err := findConversation(summaries, firstArg(args))
		if err != nil {
			return err
		}

		count, err := a.chat.MarkRead(ctx, summary.ID, a.user.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, map[string]any{"conversation_id": summary.ID, "marked": count})
		}
		if !IsQuiet() {
			fmt.Fprintf(out, "Marked %d message(s) read\n", count)
		}
		return nil
	},
}

var chatUnreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Count unread messages across conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.chat.UnreadMessageCount(ctx, a.user.ID)
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

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// messageText takes the message from args, or from piped stdin.
func messageText(in io.Reader, args []string) (string, error) {
	if len(args) > 1 {
		return args[1], nil
	}
	if in == os.Stdin && !stdinPiped() {
		return "", errors.New("message text required (pass it as an argument or pipe it on stdin)")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read message from stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func formatMessage(msg *models.Message, viewerID string) string {
	name := msg.Sender.Name()
	if name == "" {
		name = msg.SenderID
	}
	if msg.SenderID == viewerID {
		name = render(selfStyle, name)
	}

	status := ""
	if msg.SenderID == viewerID && msg.IsRead {
		status = " " + render(mutedStyle, "(read)")
	}

	stamp := render(mutedStyle, msg.CreatedAt.Local().Format("2006-01-02 15:04"))
	return fmt.Sprintf("%s  %s: %s%s", stamp, name, msg.Content, status)
}

// saveConversationContext remembers the last opened conversation.
func saveConversationContext(conversationID string) {
	store := config.NewContextStore(GetConfig().ContextPath())
	saved, err := store.Load()
	if err != nil {
		saved = &config.Context{}
	}
	saved.SetConversation(conversationID)
	if err := store.Save(saved); err != nil {
		logging.Logger.Warn().Err(err).Str("path", store.Path()).Msg("failed to save context")
	}
}
