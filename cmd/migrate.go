package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	pgstore "github.com/JakeFAU/page-insights/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies the Postgres document schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if rt.cfg.Store.Driver != "postgres" {
				return errors.New("migrate requires store.driver=postgres")
			}
			pool, err := pgstore.Connect(cmd.Context(), pgstore.Config{
				DSN:             rt.cfg.Store.DSN,
				Schema:          rt.cfg.Store.Schema,
				MaxConns:        rt.cfg.Store.MaxConns,
				MinConns:        rt.cfg.Store.MinConns,
				MaxConnLifetime: time.Duration(rt.cfg.Store.MaxConnLifetimeMinutes) * time.Minute,
			})
			if err != nil {
				return err //nolint:wrapcheck // Connect already names the failing step
			}
			defer pool.Close()
			if err := pgstore.Migrate(cmd.Context(), pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			rt.logger.Info("schema migrated")
			return nil
		},
	}
}
