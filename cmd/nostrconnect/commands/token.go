package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/totegamma/nostrconnect/internal/service"
	"github.com/totegamma/nostrconnect/jwt"
)

// token [--for 1h]: issue a control API token signed by the session key.
func tokenCmd() *cobra.Command {
	var validFor time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a short-lived control API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := jwt.Issue(appCtx.Session.Identity().SecretKey, service.ControlAudience, validFor)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&validFor, "for", time.Hour, "token lifetime")
	return cmd
}
