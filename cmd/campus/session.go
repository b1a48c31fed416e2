package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Its-donkey/campus-portal/internal/session"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the stored sign-in session",
	}
	cmd.AddCommand(newSessionShowCmd(a), newSessionSetCmd(a), newSessionClearCmd(a))
	return cmd
}

func newSessionShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session.Current()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "token\t%s\n", maskToken(s.Token))
			fmt.Fprintf(tw, "user_id\t%s\n", s.UserID)
			fmt.Fprintf(tw, "user_account\t%s\n", s.Account)
			fmt.Fprintf(tw, "user_name\t%s\n", s.Name)
			fmt.Fprintf(tw, "user_role\t%s\n", s.Role)
			return tw.Flush()
		},
	}
}

func newSessionSetCmd(a *app) *cobra.Command {
	var next session.Session
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store session fields; unset flags keep their current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session.Current()
			flags := cmd.Flags()
			if flags.Changed("token") {
				s.Token = next.Token
			}
			if flags.Changed("user-id") {
				s.UserID = next.UserID
			}
			if flags.Changed("account") {
				s.Account = next.Account
			}
			if flags.Changed("name") {
				s.Name = next.Name
			}
			if flags.Changed("role") {
				s.Role = next.Role
			}
			if err := a.session.Save(s); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&next.Token, "token", "", "bearer token")
	cmd.Flags().StringVar(&next.UserID, "user-id", "", "user id sent with assistant questions")
	cmd.Flags().StringVar(&next.Account, "account", "", "user account (student number)")
	cmd.Flags().StringVar(&next.Name, "name", "", "display name")
	cmd.Flags().StringVar(&next.Role, "role", "", "user role")
	return cmd
}

func newSessionClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Sign out by removing every stored auth key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
			return nil
		},
	}
}

func maskToken(token string) string {
	switch {
	case token == "":
		return "(none)"
	case len(token) <= 8:
		return "********"
	default:
		return token[:4] + "…" + token[len(token)-4:]
	}
}
