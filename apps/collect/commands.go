package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kannanru/studentfee/client/services"
)

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login USERNAME",
		Short: "Log in and keep the session for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(a.errOut)
			if err != nil {
				return err
			}
			usr, err := a.svc.Auth.Login(cmd.Context(), args[0], pwd)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "logged in as %s\n", usr.Name)
			return nil
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.svc.Auth.Logout()
		},
	}
}

func (a *app) studentsCmd() *cobra.Command {
	var q services.StudentQuery
	cmd := &cobra.Command{
		Use:   "students",
		Short: "List students",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stds, err := a.svc.Students.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROLL NO\tNAME\tPROGRAM\tYEAR\tID")
			for _, std := range stds {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", std.RollNo, std.Name, std.Program, std.Year, std.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&q.Search, "search", "", "name or roll number")
	cmd.Flags().StringVar(&q.Program, "program", "", "program")
	cmd.Flags().IntVar(&q.Year, "year", 0, "year of study")
	cmd.Flags().StringVar(&q.Ordering, "ordering", "name", "sort field, prefix with - for descending")
	return cmd
}
