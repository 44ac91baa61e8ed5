package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		migrateUp bool
		now       string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single settlement pass and print the report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now()
			if now != "" {
				t, err := time.Parse(time.RFC3339, now)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				at = t
			}

			ctx := context.Background()
			a, err := setup(ctx, migrateUp)
			if err != nil {
				return err
			}
			defer a.close()

			report, runErr := a.engine.RunAt(ctx, at)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", false, "run database migrations first")
	cmd.Flags().StringVar(&now, "now", "", "evaluate the window as of this RFC3339 time instead of the clock")
	return cmd
}
