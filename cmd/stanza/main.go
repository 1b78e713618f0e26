// Package main is the entry point for the stanza CLI.
package main

import (
	"fmt"
	"os"

	"github.com/stanzahq/stanza/internal/cli"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := cli.Execute(fmt.Sprintf("%s (%s, %s)", version, commit, date))
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(cli.ExitCode(err))
}
