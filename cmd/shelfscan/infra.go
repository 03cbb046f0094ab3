package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/shelfscan/internal/config"
	"github.com/jackzampolin/shelfscan/internal/infra"
)

var infraCmd = &cobra.Command{
	Use:   "infra",
	Short: "Manage the local dev containers",
	Long: `Manage the local dev containers shelfscan depends on.

The pipeline needs a message broker (RabbitMQ), Redis, and object
storage (MinIO). In production these are provisioned separately; for
local development this command runs them in Docker.

Examples:
  shelfscan infra up      # Start all containers and wait for readiness
  shelfscan infra down    # Stop the containers (data preserved)
  shelfscan infra status  # Check container status`,
}

var infraUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the broker, Redis, and object storage containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getInfraManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Starting shelfscan infra...")
		if err := mgr.Up(ctx); err != nil {
			return fmt.Errorf("failed to start infra: %w", err)
		}

		fmt.Println("All services ready")
		return nil
	},
}

var infraDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the containers",
	Long: `Stop the containers.

This stops the containers but preserves data. Use 'shelfscan infra up'
to restart them later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getInfraManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping shelfscan infra...")
		if err := mgr.Down(ctx); err != nil {
			return fmt.Errorf("failed to stop infra: %w", err)
		}

		fmt.Println("All services stopped")
		return nil
	},
}

var infraStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getInfraManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		statuses, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		for _, name := range []string{"rabbitmq", "redis", "minio"} {
			status, ok := statuses[name]
			if !ok {
				continue
			}
			switch status {
			case infra.StatusRunning:
				fmt.Printf("%-10s %s\n", name, status)
			case infra.StatusStopped:
				fmt.Printf("%-10s %s (use 'shelfscan infra up' to start)\n", name, status)
			case infra.StatusNotFound:
				fmt.Printf("%-10s %s (use 'shelfscan infra up' to create)\n", name, status)
			default:
				fmt.Printf("%-10s %s\n", name, status)
			}
		}

		return nil
	},
}

// getInfraManager builds the container manager from the current config.
func getInfraManager() (*infra.Manager, error) {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	return infra.NewManager(infra.Specs(mgr.Get()), logger)
}

func init() {
	infraCmd.AddCommand(infraUpCmd)
	infraCmd.AddCommand(infraDownCmd)
	infraCmd.AddCommand(infraStatusCmd)
	rootCmd.AddCommand(infraCmd)
}
