package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MosinFAM/blog-posts/internal/storage"

	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "PostgreSQL schema migrations",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(
		newMigrateRunCmd(configPath, "up", "Apply all pending migrations", storage.Migrate),
		newMigrateRunCmd(configPath, "status", "Print migration status", storage.MigrationStatus),
	)
	return cmd
}

func newMigrateRunCmd(configPath *string, use, short string, run func(*sql.DB, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.Storage.Backend != "postgres" {
				return errors.New("migrations apply only to the postgres backend")
			}

			conn, err := a.openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			return run(conn, a.cfg.Storage.MigrationsDir)
		},
	}
}

func newSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-categories NAME...",
		Short: "Add categories to the directory, skipping existing names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openStorage(ctx); err != nil {
				return err
			}

			added, err := a.categoryDirectory(ctx).Seed(ctx, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d of %d categories: %s\n", added, len(args), strings.Join(args, ", "))
			return nil
		},
	}
}
