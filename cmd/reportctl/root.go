package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"signal_report_backend/app"
	"signal_report_backend/config"
)

// Execute runs the root command
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "Operate signal report channels, previews and dispatch",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(channelsCmd(), reportCmd(), dispatchCmd(), jobsCmd())
	return root.ExecuteContext(ctx)
}

// withApp builds the service, runs fn and shuts everything down again
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.LoadConfig()
	config.SetupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Shutdown(shutdownCtx)
	}()

	return fn(a)
}
