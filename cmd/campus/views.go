package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fvbommel/sortorder"
	"github.com/spf13/cobra"

	"github.com/Its-donkey/campus-portal/internal/readmodel"
	"github.com/Its-donkey/campus-portal/internal/tables"
)

func newCoursesCmd(a *app) *cobra.Command {
	var asJSON, refresh bool
	cmd := &cobra.Command{
		Use:   "courses",
		Short: "List courses with teacher, free seats and weekly schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := tables.WithStore(cmd.Context(), a.store)
			listing, err := readmodel.NewCourseListing(ctx)
			if err != nil {
				return err
			}
			if err := listing.Reload(ctx, refresh); err != nil {
				return fmt.Errorf("load courses: %w", err)
			}
			courses := slices.Clone(listing.Courses())
			sort.SliceStable(courses, func(i, j int) bool {
				return sortorder.NaturalLess(courses[i].Name, courses[j].Name)
			})
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), courses)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCREDIT\tTEACHER\tREMAIN\tTYPE\tTIME")
			for _, c := range courses {
				fmt.Fprintf(tw, "%d\t%s\t%g\t%s\t%d\t%s\t%s\n", c.ID, c.Name, c.Credit, c.Teacher, c.Remain, c.Type, c.Time)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refetch the course tables")
	return cmd
}

func newGradesCmd(a *app) *cobra.Command {
	var asJSON, refresh bool
	var student string
	cmd := &cobra.Command{
		Use:   "grades",
		Short: "List grade records with GPA and level",
		Long:  "List grade records. Without --student the signed-in account is used; pass --student all for every student.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account := strings.TrimSpace(student)
			switch account {
			case "":
				account = a.session.Current().Account
			case "all":
				account = ""
			}

			ctx := tables.WithStore(cmd.Context(), a.store)
			report, err := readmodel.NewStudentGrades(ctx, account)
			if err != nil {
				return err
			}
			if err := report.Reload(ctx, refresh); err != nil {
				return fmt.Errorf("load grades: %w", err)
			}
			records := slices.Clone(report.Grades())
			sort.SliceStable(records, func(i, j int) bool {
				if records[i].Semester != records[j].Semester {
					return sortorder.NaturalLess(records[i].Semester, records[j].Semester)
				}
				return sortorder.NaturalLess(records[i].CourseName, records[j].CourseName)
			})
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEMESTER\tCOURSE\tTEACHER\tCREDIT\tSCORE\tGPA\tLEVEL\tTYPE")
			for _, g := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%d\t%s\t%s\t%s\n",
					g.Semester, g.CourseName, g.TeacherName, g.Credit, g.Score, readmodel.FormatGPA(g.GPA), g.Level, g.AssessmentType)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&student, "student", "", "student account to report on (\"all\" for everyone)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refetch the grade tables")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
