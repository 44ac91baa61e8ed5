package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/class-settlement/internal/scheduler"
	"github.com/example/class-settlement/internal/web"
)

func newServerCmd() *cobra.Command {
	var (
		migrateUp bool
		noCron    bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the settlement scheduler and the HTTP trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := setup(ctx, migrateUp)
			if err != nil {
				return err
			}
			defer a.close()

			loc, _ := a.cfg.Location()
			ws := &web.Server{
				Runner:            a.engine,
				Runs:              a.runs,
				Bookings:          a.bookings,
				DB:                a.db,
				TriggerSecretHash: a.cfg.TriggerSecretHash,
				Log:               a.log,
			}
			if a.links != nil {
				ws.Links = a.links
			}

			g, gctx := errgroup.WithContext(ctx)
			if !noCron {
				s := &scheduler.Scheduler{
					Runner:   a.engine,
					Spec:     a.cfg.Schedule,
					Location: loc,
					Log:      a.log,
				}
				g.Go(func() error {
					if err := s.Run(gctx); err != nil && gctx.Err() == nil {
						return err
					}
					return nil
				})
			}
			g.Go(func() error {
				defer cancel()
				return web.Start(gctx, a.cfg.ListenAddr, ws.Routes(a.cfg.GinMode), a.log)
			})
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().BoolVar(&noCron, "no-cron", false, "serve the HTTP trigger only; an external poller drives passes")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
