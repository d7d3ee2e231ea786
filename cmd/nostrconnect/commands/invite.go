package commands

import (
	"fmt"
	"io"

	"github.com/katzenpost/qrterminal"
	"github.com/spf13/cobra"
)

func printInvitation(w io.Writer, qr bool) {
	inv := appCtx.Session.Invitation().String()
	fmt.Fprintln(w, inv)

	if qr {
		config := qrterminal.Config{
			Level:      qrterminal.L,
			Writer:     w,
			HalfBlocks: true,
			QuietZone:  1,
		}
		qrterminal.GenerateWithConfig(inv, config)
	}
}

// invite [--qr]: print the nostrconnect:// invitation for this session.
func inviteCmd() *cobra.Command {
	var qr bool
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Print the invitation a signing app scans to bind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printInvitation(cmd.OutOrStdout(), qr)
			return nil
		},
	}
	cmd.Flags().BoolVar(&qr, "qr", false, "also render the invitation as a QR code")
	return cmd
}
