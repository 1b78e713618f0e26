package cli

import (
	"fmt"
	"io"
)

// HintContext provides context for generating relevant next steps.
type HintContext struct {
	// Action is the command that was executed (e.g., "chat open", "use").
	Action string

	// ConversationID is the conversation involved (if any).
	ConversationID string

	// Username is the other user involved (if any).
	Username string

	// NotificationID is the notification involved (if any).
	NotificationID string
}

// PrintNextSteps prints contextual next steps after a successful command.
// Does nothing for structured or quiet output.
func PrintNextSteps(out io.Writer, ctx HintContext) {
	if wantsStructured() || IsQuiet() {
		return
	}

	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(out, "  %s\n", hint)
	}
}

func generateHints(ctx HintContext) []string {
	switch ctx.Action {
	case "chat open":
		target := ctx.Username
		if target == "" {
			target = shortID(ctx.ConversationID)
		}
		return []string{
			fmt.Sprintf("stanza chat send %s \"hello\"   # send a message", target),
			fmt.Sprintf("stanza chat history %s        # show messages", target),
			fmt.Sprintf("stanza watch --conversation %s  # follow live", shortID(ctx.ConversationID)),
		}
	case "use":
		return []string{
			"stanza chat ls      # your conversations",
			"stanza notify ls    # your notifications",
		}
	case "notify create":
		return []string{
			"stanza notify count --as <recipient>   # recipient's unread badge",
		}
	default:
		return nil
	}
}
