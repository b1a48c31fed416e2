package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Its-donkey/campus-portal/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the course, grade and assistant API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = a.cfg.Listen
			}
			err := server.Run(cmd.Context(), server.Options{
				Listen:    listen,
				Logger:    a.logger,
				Store:     a.store,
				Assistant: a.reader,
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config listen)")
	return cmd
}
