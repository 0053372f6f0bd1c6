package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	gateway "github.com/stacklok/toolhive-gateway/internal/app"
)

// defaultGracefulTimeout is the Kubernetes-friendly shutdown time
const defaultGracefulTimeout = 30 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway HTTP server.

The configuration file (--config) specifies:
- the module manifest directory and whether it is watched for changes
- catalog sync and access cache behaviour
- authentication, the optional database and telemetry

See examples/ for sample configurations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().Duration("shutdown-timeout", defaultGracefulTimeout, "Time allowed for in-flight requests on shutdown")
	if err := v.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		slog.Error("Error binding address flag", "error", err)
	}
	if err := v.BindPFlag("shutdown-timeout", cmd.Flags().Lookup("shutdown-timeout")); err != nil {
		slog.Error("Error binding shutdown-timeout flag", "error", err)
	}
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.NewGatewayApp(ctx,
		gateway.WithConfig(cfg),
		gateway.WithAddress(v.GetString("address")),
	)
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- gw.Start()
	}()

	select {
	case err := <-errChan:
		_ = gw.Stop(v.GetDuration("shutdown-timeout"))
		return err
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	if err := gw.Stop(v.GetDuration("shutdown-timeout")); err != nil {
		return err
	}
	return <-errChan
}
