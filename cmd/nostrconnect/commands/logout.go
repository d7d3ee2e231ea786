package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// logout: forget the signer and delegation and start over with a new key.
func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the session and generate a fresh identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appCtx.Session.Unbind(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged out, new identity %s\n", appCtx.Session.Identity().Npub)
			return nil
		},
	}
}
