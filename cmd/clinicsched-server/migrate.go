package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"clinicsched/backend/internal/store/postgres"
	"clinicsched/backend/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			ctx := cmd.Context()
			db, err := openDatabase(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := postgres.Close(db); err != nil {
					log.Warn("database close failed", slog.Any("err", err))
				}
			}()

			applied, err := postgres.Migrate(ctx, db, migrations.FS)
			if err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			log.Info("migrations applied", slog.Int("count", len(applied)), slog.Any("versions", applied))
			return nil
		},
	})
	return cmd
}
