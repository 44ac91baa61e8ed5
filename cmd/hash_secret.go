package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/class-settlement/internal/auth"
)

func newHashSecretCmd() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "hash-secret",
		Short: "Print a TRIGGER_SECRET_HASH for the HTTP trigger's bearer secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashSecret(secret)
			if err != nil {
				return err
			}
			fmt.Printf("export TRIGGER_SECRET_HASH='%s'\n", h)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "bearer secret the poller will send")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}
