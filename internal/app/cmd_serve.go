package app

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tokasu/internal/housekeeping"
	"tokasu/internal/server"
)

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the housekeeping scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.cfg.JWTSecret == "" {
				return errors.New("jwt_secret is required to serve the API")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := housekeeping.Start(ctx, e.cfg.HousekeepingSchedule, e.housekeeper()); err != nil {
				return err
			}

			srv := server.New(e.service, e.incidents, server.Options{
				JWTSecret:      e.cfg.JWTSecret,
				AllowedOrigins: e.cfg.CORSAllowedOrigins,
				Renderers:      e.renderers(),
				Location:       e.cfg.Location,
			})
			return srv.Run(ctx, e.cfg.ListenAddr)
		},
	}
}

func (e *env) housekeeper() housekeeping.Runner {
	r := housekeeping.Runner{
		Quota:           e.guard,
		Incidents:       e.incidents,
		RetentionMonths: e.cfg.QuotaRetentionMonths,
		Location:        e.cfg.Location,
	}
	if e.notifier != nil {
		r.Digest = e.notifier
	}
	return r
}
