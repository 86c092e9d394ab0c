package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agenda/internal/alarm"
	appLog "agenda/internal/log"
	"agenda/internal/model"
	"agenda/internal/web"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the alarm scheduler and the HTTP API",
		Long: `Import the configured calendars, then fire alarms as they come due and
serve the HTTP API until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")

	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, listen string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	resync, err := alarm.ParseResync(cfg.Resync)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close()

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", e.zone.String(),
		"database", cfg.Database,
		"resync", cfg.Resync,
		"calendars", len(cfg.Calendars),
	)
	e.importCalendars(ctx, time.Now())

	sched := alarm.NewScheduler(e.reg, e.zone,
		alarm.WithResync(resync),
		alarm.WithOnFire(logFired),
	)

	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Run(ctx) }()

	srv := web.NewServer(cfg, e.zone, sched)
	if err := srv.Serve(ctx); err != nil {
		stop()
		<-schedErr
		return err
	}
	<-schedErr
	appLog.Info("agenda exiting")
	return nil
}

func logFired(at time.Time, due []model.Occurrence) {
	for _, o := range due {
		appLog.Info("alarm", "at", at, "document", o.ContainerID, "item", o.ItemID, "start", o.Start)
	}
}
