// cmd/ambientctl/cmd_invites.go
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newInvitesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invites",
		Short: "Manage recruiting invitations",
	}

	var inviter string
	create := &cobra.Command{
		Use:   "create EMAIL",
		Short: "Issue an invitation link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.cmdContext(cmd)
			defer cancel()

			inv, err := a.invites.Create(ctx, inviter, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token:   %s\n", inv.Token)
			if inv.URL != "" {
				fmt.Fprintf(out, "url:     %s\n", inv.URL)
			}
			fmt.Fprintf(out, "expires: %s\n", inv.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	create.Flags().StringVar(&inviter, "inviter", "", "user id of the inviter")
	_ = create.MarkFlagRequired("inviter")

	cmd.AddCommand(create)
	return cmd
}
