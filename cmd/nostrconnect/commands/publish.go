package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// publish <text>: publish a text note through the session.
func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <text>",
		Short: "Publish a text note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := appCtx.Session.PublishNote(ctx, strings.Join(args, " ")).Wait(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
