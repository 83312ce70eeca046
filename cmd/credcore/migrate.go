package main

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/credcore/stores/postgres"
)

// NewMigrateCmd creates the credential_records table.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the credential record schema in postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if fc.Postgres.DSN == "" {
				return errors.New("postgres.dsn is required")
			}
			logger := newLogger(fc)
			ctx := cmd.Context()

			pool, err := pgxpool.New(ctx, fc.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			if err := postgres.New(pool).Migrate(ctx); err != nil {
				return err
			}
			logger.InfoContext(ctx, "schema applied")
			return nil
		},
	}
}
