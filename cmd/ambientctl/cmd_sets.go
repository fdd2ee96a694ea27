// cmd/ambientctl/cmd_sets.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ambient-pro/internal/lifecycle"
	"ambient-pro/internal/models"
	"ambient-pro/internal/store"
	"ambient-pro/internal/views"
)

func newSetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sets",
		Short: "List, assign and close appointment sets",
	}
	cmd.AddCommand(newSetsListCmd(a), newSetsWatchCmd(a), newSetsAssignCmd(a), newSetsTransitionCmd(a), newSetsCloseCmd(a))
	return cmd
}

func newSetsListCmd(a *app) *cobra.Command {
	var as, tab, office, search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sets as a given user would see them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.cmdContext(cmd)
			defer cancel()

			q := views.SetQuery{Tab: views.Tab(tab), Office: office, Search: search}
			if q.Tab != "" && !q.Tab.Valid() {
				return fmt.Errorf("unknown tab %q", tab)
			}
			viewer, err := a.viewerFor(ctx, as)
			if err != nil {
				return err
			}
			sets, err := a.store.ListSets(ctx, store.SetFilter{})
			if err != nil {
				return err
			}
			printSets(cmd.OutOrStdout(), views.SetView(sets, viewer, q))
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "user id to view as (default: admin)")
	cmd.Flags().StringVar(&tab, "tab", "", "dashboard tab: all, active, assigned, not_closed, inactive, mine")
	cmd.Flags().StringVar(&office, "office", "", "only sets from this office")
	cmd.Flags().StringVar(&search, "search", "", "free-text filter")
	return cmd
}

func newSetsWatchCmd(a *app) *cobra.Command {
	var as, tab, office string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reprint the set list after every change until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Runs until the command context ends, so --timeout does not apply.
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			q := views.SetQuery{Tab: views.Tab(tab), Office: office}
			if q.Tab != "" && !q.Tab.Valid() {
				return fmt.Errorf("unknown tab %q", tab)
			}
			viewer, err := a.viewerFor(ctx, as)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sub, err := a.store.SubscribeSets(ctx, store.SetFilter{}, func(sets []*models.Set) {
				visible := views.SetView(sets, viewer, q)
				fmt.Fprintf(out, "# %s, %d sets\n", time.Now().UTC().Format(time.RFC3339), len(visible))
				printSets(out, visible)
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
	cmd.Flags().StringVar(&tab, "tab", "", "dashboard tab: all, active, assigned, not_closed, inactive, mine")
	cmd.Flags().StringVar(&office, "office", "", "only sets from this office")
	return cmd
}

func printSets(out io.Writer, sets []*models.Set) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCUSTOMER\tAPPOINTMENT\tSTATUS\tCLOSER\tOFFICE\tVERSION")
	for _, s := range sets {
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\t%d\n",
			s.ID, s.CustomerName, s.AppointmentDate, s.AppointmentTime, s.Status, s.CloserName, s.Office, s.Version)
	}
	w.Flush()
}

func newSetsAssignCmd(a *app) *cobra.Command {
	var reassign bool
	var version int64
	cmd := &cobra.Command{
		Use:   "assign SET_ID CLOSER_ID",
		Short: "Assign a closer to a set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.cmdContext(cmd)
			defer cancel()

			closer, err := a.store.GetUser(ctx, args[1])
			if err != nil {
				return fmt.Errorf("closer %s: %w", args[1], err)
			}
			set, err := a.engine.AssignCloser(ctx, args[0], closer.ID, closer.Name, lifecycle.AssignOptions{
				ExpectedVersion: version,
				Reassign:        reassign,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set %s assigned to %s (status %s, version %d)\n",
				set.ID, set.CloserName, set.Status, set.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reassign, "reassign", false, "replace a different closer already on the set")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "fail unless the set is at this version")
	return cmd
}

func newSetsTransitionCmd(a *app) *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:   "transition SET_ID STATUS",
		Short: "Move a set to assigned, not_closed or inactive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.cmdContext(cmd)
			defer cancel()

			set, err := a.engine.TransitionSet(ctx, args[0], models.SetStatus(args[1]), version)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set %s is %s (version %d)\n", set.ID, set.Status, set.Version)
			return nil
		},
	}
	cmd.Flags().Int64Var(&version, "expected-version", 0, "fail unless the set is at this version")
	return cmd
}

func newSetsCloseCmd(a *app) *cobra.Command {
	var as, formPath string
	var yes bool
	var version int64
	cmd := &cobra.Command{
		Use:   "close SET_ID",
		Short: "Close a set into a project and record the commission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.cmdContext(cmd)
			defer cancel()

			form, err := readCloseForm(cmd.InOrStdin(), formPath)
			if err != nil {
				return err
			}
			res, err := a.engine.CloseSet(ctx, lifecycle.CloseRequest{
				SetID:           args[0],
				ClosingUserID:   as,
				Form:            *form,
				Confirmed:       yes,
				ExpectedVersion: version,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "project %s created for %s (deal #%d)\n", res.Project.ID, res.OwnerID, res.Project.DealNumber)
			fmt.Fprintf(out, "commission %.2f at %.0f/kW, payable %s (entry %s)\n",
				res.Ledger.Amount, res.Project.CommissionRate, res.Ledger.Date, res.Ledger.ID)
			fmt.Fprintf(out, "gross cost %.2f\n", res.GrossCost)
			if res.MirroredTo != "" {
				fmt.Fprintf(out, "ledger entry mirrored to %s\n", res.MirroredTo)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "closing user id")
	cmd.Flags().StringVar(&formPath, "form", "-", "close form JSON file, - for stdin")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the close")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "fail unless the set is at this version")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func readCloseForm(stdin io.Reader, path string) (*models.CloseForm, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var form models.CloseForm
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&form); err != nil {
		return nil, fmt.Errorf("decode close form: %w", err)
	}
	return &form, nil
}
