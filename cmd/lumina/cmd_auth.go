package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comigor/lumina/internal/auth"
)

var (
	profileName  string
	profileEmail string
)

// authCmd manages the stored session tokens
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored session",
	Long: `Manage the session tokens used to talk to the Lumina service.

Available subcommands:
  token  - Store the tokens issued at sign-in
  logout - Forget tokens and profile
  status - Show whether a session is stored`,
}

var authTokenCmd = &cobra.Command{
	Use:   "token <access> [refresh]",
	Short: "Store the tokens issued at sign-in",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh := ""
		if len(args) == 2 {
			refresh = args[1]
		}
		return withCreds(func(s *auth.Store) error {
			if err := s.SetTokens(args[0], refresh); err != nil {
				return fmt.Errorf("store tokens: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed in.")
			return nil
		})
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored tokens and profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCreds(func(s *auth.Store) error {
			if err := s.Logout(); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		})
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a session is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCreds(func(s *auth.Store) error {
			id := s.Identity()
			if s.Token() == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Not signed in; asking anonymously as %s.\n", id.Name)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s).\n", id.Name, id.Initials())
			return nil
		})
	},
}

// profileCmd shows or updates the name used to label messages
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update your display name and email",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCreds(func(s *auth.Store) error {
			id := s.Identity()
			changed := false
			if cmd.Flags().Changed("name") {
				id.Name, changed = profileName, true
			}
			if cmd.Flags().Changed("email") {
				id.Email, changed = profileEmail, true
			}
			if changed {
				if err := s.SetIdentity(id); err != nil {
					return fmt.Errorf("save profile: %w", err)
				}
				id = s.Identity()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Name:     %s\nEmail:    %s\nInitials: %s\n", id.Name, id.Email, id.Initials())
			return nil
		})
	},
}

func withCreds(fn func(*auth.Store) error) error {
	s := auth.Open(cfg.Auth.DBPath)
	defer s.Close()
	return fn(s)
}
