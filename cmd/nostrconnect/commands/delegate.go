package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/totegamma/nostrconnect/internal/domain"
)

// delegate [--for 2h] [--kinds 1,77]: obtain and install a delegation.
func delegateCmd() *cobra.Command {
	var (
		validFor time.Duration
		kinds    []int
	)
	cmd := &cobra.Command{
		Use:   "delegate",
		Short: "Ask the bound signer for a delegation and install it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session := appCtx.Session

			if _, ok := session.Signer(); !ok {
				return fmt.Errorf("%w: run connect first", domain.ErrNotBound)
			}

			cred, err := session.Delegate(ctx, validFor, kinds).Wait(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "delegated by %s: %s\n", cred.Delegator, cred.Conditions)
			return nil
		},
	}
	cmd.Flags().DurationVar(&validFor, "for", 0, "how long the delegation stays valid (default from config)")
	cmd.Flags().IntSliceVar(&kinds, "kinds", nil, "event kinds the delegation covers (default from config)")
	return cmd
}
