package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/models"
)

var (
	profileDisplayName string
	profileAvatarURL   string
	poemAuthor         string
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileListCmd)

	profileAddCmd.Flags().StringVar(&profileDisplayName, "display-name", "", "display name")
	profileAddCmd.Flags().StringVar(&profileAvatarURL, "avatar", "", "avatar URL")

	rootCmd.AddCommand(poemCmd)
	poemCmd.AddCommand(poemAddCmd)
	poemAddCmd.Flags().StringVar(&poemAuthor, "author", "", "author user id (required)")
	_ = poemAddCmd.MarkFlagRequired("author")
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage user profiles",
	Long:  "Profiles are the public projection of users. Chat and notifications join against them.",
}

var profileAddCmd = &cobra.Command{
	Use:   "add <id> <username>",
	Short: "Add or update a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 10*time.Second)
		defer cancel()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		profile := &models.Profile{
			ID:          args[0],
			Username:    args[1],
			DisplayName: profileDisplayName,
			AvatarURL:   profileAvatarURL,
		}
		repo := db.NewProfileRepository(database)
		if err := repo.Upsert(ctx, profile); err != nil {
			return err
		}
		stored, err := repo.Get(ctx, profile.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, stored)
		}
		if !IsQuiet() {
			fmt.Fprintf(out, "Profile %s (%s) saved\n", stored.Username, stored.ID)
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <id-or-username>",
	Short: "Show a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, profile)
		}
		return writeTable(out, []string{"FIELD", "VALUE"}, [][]string{
			{"id", profile.ID},
			{"username", profile.Username},
			{"display name", profile.DisplayName},
			{"avatar", profile.AvatarURL},
			{"created", profile.CreatedAt.Local().Format(time.DateTime)},
		})
	},
}

var profileListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List profiles",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 10*time.Second)
		defer cancel()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		profiles, err := db.NewProfileRepository(database).List(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, profiles)
		}
		if len(profiles) == 0 {
			fmt.Fprintln(out, "No profiles found")
			return nil
		}
		table := make([][]string, 0, len(profiles))
		for _, profile := range profiles {
			table = append(table, []string{shortID(profile.ID), profile.Username, profile.DisplayName})
		}
		return writeTable(out, []string{"ID", "USERNAME", "NAME"}, table)
	},
}

var poemCmd = &cobra.Command{
	Use:   "poem",
	Short: "Manage poem projections",
	Long:  "Poems are owned elsewhere; stanza keeps the id, author and title that notifications reference.",
}

var poemAddCmd = &cobra.Command{
	Use:   "add <id> <title>",
	Short: "Add or update a poem",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 10*time.Second)
		defer cancel()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		author, err := findProfile(ctx, db.NewProfileRepository(database), poemAuthor)
		if err != nil {
			return err
		}

		poem := &models.Poem{ID: args[0], AuthorID: author.ID, Title: args[1]}
		if err := db.NewPoemRepository(database).Upsert(ctx, poem); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, poem)
		}
		if !IsQuiet() {
			fmt.Fprintf(out, "Poem %q by %s saved\n", poem.Title, author.Username)
		}
		return nil
	},
}
