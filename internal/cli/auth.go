package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/identity"
)

var (
	tokenTTL   time.Duration
	tokenEmail string
)

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authTokenCmd)
	authCmd.AddCommand(authWhoamiCmd)

	authTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	authTokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Session tokens and identity",
}

var authTokenCmd = &cobra.Command{
	Use:   "token <user>",
	Short: "Issue a session token signed with auth.jwt_secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 10*time.Second)
		defer cancel()

		cfg := GetConfig()
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is not configured")
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		profile, err := findProfile(ctx, db.NewProfileRepository(database), args[0])
		if err != nil {
			return err
		}

		provider, err := identity.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, "")
		if err != nil {
			return err
		}
		token, err := provider.Issue(identity.User{
			ID:            profile.ID,
			Email:         tokenEmail,
			EmailVerified: tokenEmail != "",
		}, tokenTTL)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, map[string]any{
				"user_id":    profile.ID,
				"token":      token,
				"expires_at": time.Now().Add(tokenTTL).UTC(),
			})
		}
		fmt.Fprintln(out, token)
		return nil
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd, 10*time.Second)
		defer cancel()

		user, err := requireCurrentUser(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if wantsStructured() {
			return WriteOutput(out, user)
		}
		fmt.Fprintln(out, user.ID)
		return nil
	},
}
