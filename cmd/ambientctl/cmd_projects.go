// cmd/ambientctl/cmd_projects.go
package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ambient-pro/internal/models"
	"ambient-pro/internal/store"
	"ambient-pro/internal/views"
)

func newProjectsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Follow closed projects through the install pipeline",
	}
	cmd.AddCommand(newProjectsWatchCmd(a))
	return cmd
}

func newProjectsWatchCmd(a *app) *cobra.Command {
	var as, owner, statuses string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reprint the project list after every change until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			q := views.ProjectQuery{OwnerID: owner}
			if statuses != "" {
				for _, part := range strings.Split(statuses, ",") {
					st := models.ProjectStatus(strings.TrimSpace(part))
					if !st.Valid() {
						return fmt.Errorf("unknown status %q", st)
					}
					q.Statuses = append(q.Statuses, st)
				}
			}
			viewer, err := a.viewerFor(ctx, as)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sub, err := a.store.SubscribeProjects(ctx, store.ProjectFilter{UserID: owner}, func(projects []*models.Project) {
				visible := views.SortProjectsByDeal(views.FilterProjects(views.VisibleProjects(projects, viewer), q))
				fmt.Fprintf(out, "# %s, %d projects\n", time.Now().UTC().Format(time.RFC3339), len(visible))
				printProjects(out, visible)
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "user id to view as (default: admin)")
	cmd.Flags().StringVar(&owner, "owner", "", "only projects owned by this user")
	cmd.Flags().StringVar(&statuses, "status", "", "comma-separated pipeline stages")
	return cmd
}

func printProjects(out io.Writer, projects []*models.Project) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tDEAL\tCUSTOMER\tSTATUS\tPAYMENT\tPAY DATE")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t#%d\t%s\t%s\t%.2f\t%s\n",
			p.ID, p.UserID, p.DealNumber, p.CustomerName, p.Status, p.PaymentAmount, p.PaymentDate)
	}
	w.Flush()
}
