package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/assetd/internal/config"
	"github.com/tjfontaine/assetd/internal/telemetry"
	"github.com/tjfontaine/assetd/pkg/assetd"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the asset server",
		Long: `Start the asset server and the debug listener. The config file is
watched; pipeline, template and transpile settings apply without a restart.

Examples:
  assetd serve
  assetd serve --config ./deploy/config.yaml --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []assetd.Option
			if cmd.Flags().Changed("port") {
				opts = append(opts, assetd.WithPort(port))
			}
			return runServe(cmd.Context(), *configPath, opts...)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")

	return cmd
}

func runServe(ctx context.Context, configPath string, extra ...assetd.Option) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry, "assetd", logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	opts := append([]assetd.Option{
		assetd.WithLogger(logger),
		assetd.WithFileConfig(configPath),
	}, extra...)

	srv, err := assetd.New(opts...)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if ep := srv.DebugEndpoint(); ep != nil {
		logger.Info("debug listener available", slog.String("url", ep.URL))
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping asset server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
