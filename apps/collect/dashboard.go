package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kannanru/studentfee/client/dashboard"
	"github.com/kannanru/studentfee/client/journal"
	"github.com/kannanru/studentfee/client/services"
)

func (a *app) overviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show today's students, fees and attendance figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov, err := dashboard.LoadOverview(cmd.Context(), a.svc.Students, a.svc.Fees, a.svc.Attendance)
			if err != nil {
				return err
			}

			programs := make([]string, 0, len(ov.Students.ByProgram))
			for p := range ov.Students.ByProgram {
				programs = append(programs, p)
			}
			sort.Strings(programs)
			byProgram := make([]string, len(programs))
			for i, p := range programs {
				byProgram[i] = fmt.Sprintf("%s %d", p, ov.Students.ByProgram[p])
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "students\t%d total, %d active\t%s\n", ov.Students.Total, ov.Students.Active, strings.Join(byProgram, ", "))
			fmt.Fprintf(tw, "fees today\t%d payments\t%s\n", ov.Fees.PaymentsToday, ov.Fees.CollectedToday.StringFixed(2))
			fmt.Fprintf(tw, "fees this month\t%d payments\t%s (fines %s)\n", ov.Fees.PaymentsThisMonth, ov.Fees.CollectedThisMonth.StringFixed(2), ov.Fees.FinesThisMonth.StringFixed(2))
			fmt.Fprintf(tw, "fees outstanding\t\t%s\n", ov.Fees.Outstanding.StringFixed(2))
			fmt.Fprintf(tw, "attendance\t%d marked\t%d present, %d late, %d absent\n", ov.Attendance.Total, ov.Attendance.Present, ov.Attendance.Late, ov.Attendance.Absent)
			return tw.Flush()
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var program string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow payments and attendance as they are recorded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			roster, err := a.svc.Students.List(ctx, services.StudentQuery{Program: program, Ordering: "name"})
			if err != nil {
				return err
			}
			board := dashboard.NewBoard(roster, func(row dashboard.Row) {
				fmt.Fprintf(a.out, "%s  %-8s %-24s collected %-10s last receipt %-24s attendance %s\n",
					row.UpdatedAt.Format("15:04:05"), row.Student.RollNo, row.Student.Name,
					row.Collected.StringFixed(2), row.LastReceipt, row.Attendance)
			})
			fmt.Fprintf(a.errOut, "watching %d students, ctrl-c to stop\n", len(roster))
			return board.Watch(ctx, a.client)
		},
	}
	cmd.Flags().StringVar(&program, "program", "", "only students of this program")
	return cmd
}

func (a *app) reconciliationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconciliations",
		Short: "List captured payments the backend did not record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(a.conf.Journal)
			if err != nil {
				return err
			}
			defer j.Close()

			recs, err := j.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(a.out, "nothing to reconcile")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tPAYMENT\tORDER\tAMOUNT\tSTUDENT\tSTEP\tERROR")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04"), r.PaymentID, r.OrderID,
					r.Amount.StringFixed(2), r.StudentID, r.Step, r.Error)
			}
			return tw.Flush()
		},
	}
}
