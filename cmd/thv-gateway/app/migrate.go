package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-gateway/database"
	dbstore "github.com/stacklok/toolhive-gateway/internal/store/database"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")

	cmd.AddCommand(newMigrateUpCmd(v))
	cmd.AddCommand(newMigrateDownCmd(v))
	return cmd
}

func newMigrateUpCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply all pending database migrations to bring the schema up to date.
This command reads the database connection parameters from the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			connString, cfgLabel, err := migrationTarget(cmd, v)
			if err != nil {
				return err
			}
			if !confirmed(cmd, fmt.Sprintf("Apply migrations to %s?", cfgLabel)) {
				slog.Info("Migration cancelled by user")
				return nil
			}
			return database.MigrateUp(connString)
		},
	}
}

func newMigrateDownCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Migrate the database down",
		Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  thv-gateway migrate down --config config.yaml --num-steps 1 --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, err := cmd.Flags().GetInt("num-steps")
			if err != nil {
				return fmt.Errorf("failed to get num-steps flag: %w", err)
			}
			if steps <= 0 {
				return fmt.Errorf("--num-steps must be positive")
			}
			connString, cfgLabel, err := migrationTarget(cmd, v)
			if err != nil {
				return err
			}
			prompt := fmt.Sprintf("WARNING: This will migrate %s down %d step(s) and may result in data loss. Continue?",
				cfgLabel, steps)
			if !confirmed(cmd, prompt) {
				return fmt.Errorf("migration cancelled by user")
			}
			return database.MigrateDown(connString, steps)
		},
	}
	cmd.Flags().IntP("num-steps", "n", 1, "Number of migrations to revert")
	return cmd
}

// migrationTarget returns the connection string of the configured database and
// a printable label without credentials
func migrationTarget(cmd *cobra.Command, v *viper.Viper) (string, string, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return "", "", err
	}
	if cfg.Database == nil {
		return "", "", fmt.Errorf("database configuration is required")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	connString, err := dbstore.ConnectionString(ctx, cfg.Database)
	if err != nil {
		return "", "", fmt.Errorf("failed to build connection string: %w", err)
	}
	label := fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	return connString, label, nil
}

func confirmed(cmd *cobra.Command, prompt string) bool {
	yes, err := cmd.Flags().GetBool("yes")
	if err == nil && yes {
		return true
	}
	return confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
}
