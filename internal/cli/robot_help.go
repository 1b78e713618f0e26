package cli

import (
	"fmt"
	"io"
	"strings"
)

// hasRobotHelpFlag reports whether --robot-help appears before any "--".
func hasRobotHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		if arg == "--robot-help" || strings.HasPrefix(arg, "--robot-help=") {
			return arg != "--robot-help=false"
		}
	}
	return false
}

func printRobotHelp(w io.Writer) {
	if w == nil {
		return
	}

	// keep: concise; copy-pasteable commands; stable section names
	fmt.Fprint(w, `Stanza Robot Help

Setup
1) stanza migrate
2) stanza profile add <id> <username> --display-name "Name"
3) stanza use <username>            (static identity; or --as <id>)

Direct messages
- stanza chat open <user>           : get-or-create the 1:1 conversation
- stanza chat ls                    : conversations, newest first, with unread counts
- stanza chat send <conv> "text"    : append (stdin when piped)
- stanza chat history [conv]        : oldest first; marks the other side read
- stanza chat read [conv]           : mark read without listing
- stanza chat unread                : total unread direct messages

Notifications
- stanza notify create --to <user> --type like|comment|follow [--poem <id>] [--content "..."]
- stanza notify ls | count | read <id> | read-all

Live
- stanza watch [--conversation <conv>]   : messages + unread badge as they arrive
- stanza events tail [--entity messages] [--since 10m]
- stanza events prune [--older-than 720h]

Identity
- static: --as <id> or "stanza use"; jwt: --token <jwt> (auth.mode=jwt)
- stanza auth token <user> --ttl 24h
- stanza auth whoami

Env
- STANZA_DATABASE_PATH, STANZA_LOGGING_LEVEL, STANZA_LIVE_TRANSPORT, STANZA_LIVE_NATS_URL
- STANZA_AUTH_MODE, STANZA_AUTH_USER_ID, STANZA_AUTH_TOKEN, STANZA_AUTH_JWT_SECRET

Automation / scripting
- add --json / --jsonl for machine output on most commands
- stanza commands --json lists the command surface
- exit codes: 1 failure, 2 invalid input, 3 not allowed, 4 not found, 5 conflict, 6 live transport down
`)
}
