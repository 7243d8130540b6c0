package main

import (
	"fmt"
	"time"

	"github.com/goliatone/go-pagepdf/export"
	"github.com/spf13/cobra"
)

func newCleanupCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stored documents whose retention has expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := export.Cleanup(ctx, a.tracker, a.store, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired documents\n", removed)
			return nil
		},
	}
}
