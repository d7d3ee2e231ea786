package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/totegamma/nostrconnect"
)

func inspect(w io.Writer, arg string) error {
	var (
		pk  string
		inv *nostrconnect.Invitation
	)
	if strings.HasPrefix(arg, nostrconnect.InvitationScheme+"://") {
		parsed, err := nostrconnect.ParseInvitation(arg)
		if err != nil {
			return err
		}
		inv, pk = &parsed, parsed.PublicKey
	} else {
		decoded, err := nostrconnect.DecodePublicKey(arg)
		if err != nil {
			return err
		}
		pk = decoded
	}

	npub, err := nostrconnect.EncodeNpub(pk)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "pubkey: %s\nnpub:   %s\n", pk, npub)
	if inv != nil {
		fmt.Fprintf(w, "relay:  %s\nname:   %s\n", inv.Relay, inv.Name)
	}
	return nil
}

// inspect <invitation|npub|hex>: decode an invitation or a public key.
func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <invitation|npub|hex>",
		Short: "Decode a nostrconnect:// invitation or a public key",
		Args:  cobra.ExactArgs(1),
		// no session needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd.OutOrStdout(), strings.TrimSpace(args[0]))
		},
	}
}
