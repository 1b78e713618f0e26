package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stanzahq/stanza/internal/chattui"
)

func init() {
	chatCmd.AddCommand(chatUICmd)
}

var chatUICmd = &cobra.Command{
	Use:   "ui [conversation]",
	Short: "Open the interactive chat window",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var initial string
		if len(args) > 0 {
			summaries, err := a.chat.ListForUser(ctx, a.user.ID)
			if err != nil {
				return err
			}
			summary, err := findConversation(summaries, args[0])
			if err != nil {
				return err
			}
			initial = summary.ID
		}

		group, groupCtx := errgroup.WithContext(ctx)
		live, closeLive := viewChannel(groupCtx, group, a)
		defer closeLive()

		group.Go(func() error {
			defer stop()
			return chattui.Run(groupCtx, chattui.Config{
				Chat:         a.chat,
				Notify:       a.notify,
				Live:         live,
				ViewerID:     a.user.ID,
				Conversation: initial,
				PollInterval: GetConfig().Notifications.PollInterval,
			})
		})
		return group.Wait()
	},
}
