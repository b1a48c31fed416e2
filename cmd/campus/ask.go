package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Its-donkey/campus-portal/internal/assistant"
)

func newAskCmd(a *app) *cobra.Command {
	var opts assistant.AskOptions
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask the AI assistant and stream the answer",
		Example: `  campus ask 下周有哪些课程
  campus ask --course 12 --history "what is due on Friday?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			got, err := a.reader.Ask(cmd.Context(), strings.Join(args, " "), opts, func(text string) {
				fmt.Fprint(out, text)
			})
			if got {
				fmt.Fprintln(out)
			}
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if !got {
				fmt.Fprintln(cmd.ErrOrStderr(), "no answer")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Model, "model", "", "model to answer with")
	cmd.Flags().IntVar(&opts.CourseID, "course", 0, "course the question is about")
	cmd.Flags().StringVar(&opts.Workflow, "workflow", "", "assistant workflow")
	cmd.Flags().BoolVar(&opts.History, "history", false, "include conversation history")
	return cmd
}
