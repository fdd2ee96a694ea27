// cmd/ambientctl/cmd_users.go
package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ambient-pro/internal/store"
	"ambient-pro/internal/views"
)

func newLeaderboardCmd(a *app) *cobra.Command {
	var by, office string
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank setters and closers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.cmdContext(cmd)
			defer cancel()

			metric := views.Metric(by)
			if metric != views.MetricDeals && metric != views.MetricCommission {
				return fmt.Errorf("--by must be %q or %q", views.MetricDeals, views.MetricCommission)
			}
			users, err := a.store.ListUsers(ctx, store.UserFilter{Office: office})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tNAME\tROLE\tOFFICE\tDEALS\tCOMMISSION")
			for _, e := range views.Leaderboard(users, metric) {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%.2f\n", e.Rank, e.Name, e.Role, e.Office, e.DealCount, e.TotalCommission)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&by, "by", string(views.MetricDeals), "ranking metric: deals or commission")
	cmd.Flags().StringVar(&office, "office", "", "only users from this office")
	return cmd
}

func newCommissionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commissions",
		Short: "Inspect and settle commission ledgers",
	}

	list := &cobra.Command{
		Use:   "list USER_ID",
		Short: "Show a user's commission ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.cmdContext(cmd)
			defer cancel()

			u, err := a.store.GetUser(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d deals, %.2f total\n", u.Name, u.DealCount, u.TotalCommission)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENTRY\tPROJECT\tCUSTOMER\tDEAL\tAMOUNT\tDATE\tSTATUS")
			for _, p := range u.CommissionPayments {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%s\t%s\n",
					p.ID, p.ProjectID, p.CustomerName, p.DealNumber, p.Amount, p.Date, p.Status)
			}
			return w.Flush()
		},
	}

	pay := &cobra.Command{
		Use:   "pay USER_ID ENTRY_ID",
		Short: "Mark a ledger entry as paid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.cmdContext(cmd)
			defer cancel()

			entry, err := a.engine.MarkCommissionPaid(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entry %s for %.2f is %s\n", entry.ID, entry.Amount, entry.Status)
			return nil
		},
	}

	cmd.AddCommand(list, pay)
	return cmd
}
