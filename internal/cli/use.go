package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanzahq/stanza/internal/config"
	"github.com/stanzahq/stanza/internal/db"
)

var useClear bool

func init() {
	rootCmd.AddCommand(useCmd)
	useCmd.Flags().BoolVar(&useClear, "clear", false, "clear the saved context")
}

var useCmd = &cobra.Command{
	Use:   "use [user]",
	Short: "Set or show the acting user",
	Long: `Save the acting user for later commands in static identity mode. Without
arguments the saved context is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewContextStore(GetConfig().ContextPath())
		out := cmd.OutOrStdout()

		if useClear {
			if err := store.Clear(); err != nil {
				return err
			}
			if !IsQuiet() {
				fmt.Fprintln(out, "Context cleared")
			}
			return nil
		}

		saved, err := store.Load()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			if wantsStructured() {
				return WriteOutput(out, saved)
			}
			fmt.Fprintln(out, saved.String())
			return nil
		}

		ctx, cancel := commandContext(cmd, 10*time.Second)
		defer cancel()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		profile, err := findProfile(ctx, db.NewProfileRepository(database), args[0])
		if err != nil {
			return err
		}

		saved.SetUser(profile.ID, profile.Username)
		if err := store.Save(saved); err != nil {
			return err
		}

		if wantsStructured() {
			return WriteOutput(out, saved)
		}
		if !IsQuiet() {
			fmt.Fprintf(out, "Now acting as %s\n", profile.Name())
			PrintNextSteps(out, HintContext{Action: "use"})
		}
		return nil
	},
}
