package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-gateway/internal/catalog"
	// registers the manifest handler kinds
	_ "github.com/stacklok/toolhive-gateway/internal/handlers"
	"github.com/stacklok/toolhive-gateway/internal/loader"
	"github.com/stacklok/toolhive-gateway/internal/store/database"
)

func newSyncCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one catalog sync pass against the database",
		Long: `Load every module manifest once and reconcile the discovered endpoints into
the catalog database, then print the pass result as JSON.

Operator-owned fields (status, category overrides) are never changed; endpoints
that are no longer discovered are deactivated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if cfg.Database == nil {
				return fmt.Errorf("database configuration is required for a standalone sync")
			}

			pool, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			st, err := database.New(database.WithConnectionPool(pool))
			if err != nil {
				pool.Close()
				return err
			}
			defer st.Close()

			ld := loader.New(loader.NewDirectorySource(cfg.GetModulesPath(), cfg.Modules.Skip...))
			syncer := catalog.NewSyncer(ld, st, catalog.WithStoreTimeout(cfg.GetStoreTimeout()))

			result, syncErr := syncer.Sync(ctx)
			output, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format sync result: %w", err)
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(output)); err != nil {
				return err
			}
			return syncErr
		},
	}
}
