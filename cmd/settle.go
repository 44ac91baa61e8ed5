package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/class-settlement/internal/domain"
)

// newSettleCmd settles one session regardless of the time window. Useful for
// reconciling a session a previous pass left partially settled.
func newSettleCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle a single class session by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.sessions.Get(ctx, sessionID)
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("session %s not found", sessionID)
			}
			if err != nil {
				return err
			}

			out := a.engine.SettleSession(ctx, s)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session-id", "", "class session id")
	_ = cmd.MarkFlagRequired("session-id")
	return cmd
}
