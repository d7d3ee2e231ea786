package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func relayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Manage publish relays",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <url>",
			Short: "Add a publish relay",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				pending, err := appCtx.Session.AddRelay(ctx, args[0])
				if err != nil {
					return err
				}
				if _, err := pending.Wait(ctx); err != nil {
					// the relay stays in the set and is retried on the next publish
					fmt.Fprintf(cmd.ErrOrStderr(), "added, but not reachable: %v\n", err)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:     "rm <url>",
			Aliases: []string{"remove"},
			Short:   "Remove a publish relay",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				_, err := appCtx.Session.RemoveRelay(ctx, args[0]).Wait(ctx)
				return err
			},
		},
		&cobra.Command{
			Use:     "ls",
			Aliases: []string{"list"},
			Short:   "List relays",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "connect\t%s\n", appCtx.Session.ConnectRelay())
				for _, r := range appCtx.Session.Relays() {
					fmt.Fprintf(out, "publish\t%s\n", r)
				}
				return nil
			},
		},
	)
	return cmd
}
