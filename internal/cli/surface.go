package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func init() {
	rootCmd.AddCommand(commandsCmd)
}

var commandsCmd = &cobra.Command{
	Use:    "commands",
	Short:  "Print the command surface as JSON",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := CommandSurfaceJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

// SurfaceManifest describes every visible stanza command, for scripts that
// drive the CLI.
type SurfaceManifest struct {
	CLI         string           `json:"cli"`
	Version     string           `json:"version,omitempty"`
	GlobalFlags []SurfaceFlag    `json:"global_flags"`
	Commands    []SurfaceCommand `json:"commands"`
}

// SurfaceCommand is one command and its subcommands.
type SurfaceCommand struct {
	Name        string           `json:"name"`
	Usage       string           `json:"usage"`
	Aliases     []string         `json:"aliases,omitempty"`
	Short       string           `json:"short"`
	Flags       []SurfaceFlag    `json:"flags,omitempty"`
	Subcommands []SurfaceCommand `json:"subcommands,omitempty"`
}

// SurfaceFlag is one flag of a command.
type SurfaceFlag struct {
	Long    string `json:"long"`
	Short   string `json:"short,omitempty"`
	Type    string `json:"type"`
	Default string `json:"default,omitempty"`
}

// CommandSurfaceJSON returns the stanza command tree as indented JSON.
func CommandSurfaceJSON() ([]byte, error) {
	manifest := SurfaceManifest{
		CLI:         rootCmd.Name(),
		Version:     rootCmd.Version,
		GlobalFlags: surfaceFlags(rootCmd.PersistentFlags()),
		Commands:    surfaceCommands(rootCmd),
	}
	return json.MarshalIndent(manifest, "", "  ")
}

func surfaceCommands(parent *cobra.Command) []SurfaceCommand {
	var out []SurfaceCommand
	for _, c := range parent.Commands() {
		if c.Hidden || c.Name() == "help" {
			continue
		}
		out = append(out, SurfaceCommand{
			Name:        c.Name(),
			Usage:       c.UseLine(),
			Aliases:     c.Aliases,
			Short:       c.Short,
			Flags:       surfaceFlags(c.LocalNonPersistentFlags()),
			Subcommands: surfaceCommands(c),
		})
	}
	slices.SortFunc(out, func(a, b SurfaceCommand) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func surfaceFlags(fs *pflag.FlagSet) []SurfaceFlag {
	var out []SurfaceFlag
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "help" || f.Hidden {
			return
		}
		out = append(out, SurfaceFlag{
			Long:    f.Name,
			Short:   f.Shorthand,
			Type:    f.Value.Type(),
			Default: f.DefValue,
		})
	})
	slices.SortFunc(out, func(a, b SurfaceFlag) int { return strings.Compare(a.Long, b.Long) })
	return out
}
