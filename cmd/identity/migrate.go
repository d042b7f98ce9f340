package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-identity/repository"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var drop bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the identity tables and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}

			db, err := repository.Open(cfg.Database, logger)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
			}
			defer db.Close()

			ctx := cmd.Context()
			if drop {
				cmd.Println("Dropping tables...")
				if err := repository.DropSchema(ctx, db); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "drop schema").Wrap(err)
				}
			}

			cmd.Println("Running migrations...")
			if err := repository.CreateSchema(ctx, db); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "create schema").Wrap(err)
			}

			cmd.Println("Migrations completed successfully")
			return nil
		},
	}

	cmd.Flags().BoolVar(&drop, "drop", false, "drop existing tables first")
	return cmd
}
