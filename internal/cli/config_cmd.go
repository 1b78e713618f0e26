package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stanzahq/stanza/internal/logging"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with secrets redacted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := map[string]any{}
		if configLoader != nil {
			settings = logging.RedactMap(configLoader.Settings())
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, settings)
		}

		if configLoader != nil && configLoader.ConfigFileUsed() != "" {
			fmt.Fprintf(out, "# %s\n", configLoader.ConfigFileUsed())
		}
		data, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		_, err = out.Write(data)
		return err
	},
}
