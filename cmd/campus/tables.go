package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/fvbommel/sortorder"
	"github.com/spf13/cobra"

	"github.com/Its-donkey/campus-portal/internal/tables"
)

func newTablesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect the cached data tables",
	}
	cmd.AddCommand(newTablesFetchCmd(a))
	return cmd
}

func newTablesFetchCmd(a *app) *cobra.Command {
	var asJSON, force bool
	cmd := &cobra.Command{
		Use:   "fetch NAME...",
		Short: "Load tables and print their row counts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Ensure(cmd.Context(), args, force); err != nil {
				return err
			}
			names := append([]string(nil), args...)
			sort.Sort(sortorder.Natural(names))

			if asJSON {
				out := make(map[string][]tables.Row, len(names))
				for _, name := range names {
					if a.store.Loaded(name) {
						out[name] = a.store.Rows(name)
					}
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tROWS")
			for _, name := range names {
				if !a.store.Loaded(name) {
					fmt.Fprintf(tw, "%s\tunavailable\n", name)
					continue
				}
				fmt.Fprintf(tw, "%s\t%d\n", name, len(a.store.Rows(name)))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as JSON")
	cmd.Flags().BoolVar(&force, "force", false, "refetch tables that are already loaded")
	return cmd
}
