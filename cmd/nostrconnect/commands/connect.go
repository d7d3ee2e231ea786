package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/totegamma/nostrconnect"
)

// connect [--relay url] [--qr]: print the invitation and wait for a signer.
func connectCmd() *cobra.Command {
	var (
		qr    bool
		relay string
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Wait for a signing app to accept the invitation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session := appCtx.Session

			if relay != "" {
				if _, err := session.SetConnectRelay(ctx, relay); err != nil {
					return err
				}
			}

			pending := session.BeginHandshake(ctx)
			printInvitation(cmd.OutOrStdout(), qr)
			fmt.Fprintf(cmd.ErrOrStderr(), "waiting for a signer on %s\n", session.ConnectRelay())

			signer, err := pending.Wait(ctx)
			if err != nil {
				return err
			}

			npub, _ := nostrconnect.EncodeNpub(signer)
			fmt.Fprintf(cmd.OutOrStdout(), "bound to %s\n", npub)
			return nil
		},
	}
	cmd.Flags().BoolVar(&qr, "qr", false, "also render the invitation as a QR code")
	cmd.Flags().StringVar(&relay, "relay", "", "connect relay to use for the handshake")
	return cmd
}
