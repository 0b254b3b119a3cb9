package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/database"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := load()
				if err != nil {
					return err
				}
				db, err := database.Open(database.ConfigFrom(cfg.Database))
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close() //nolint:errcheck // CLI exit path

				if err := db.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return err
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := load()
				if err != nil {
					return err
				}
				db, err := database.Open(database.ConfigFrom(cfg.Database))
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close() //nolint:errcheck // CLI exit path

				if err := db.MigrateDown(cmd.Context()); err != nil {
					return fmt.Errorf("rolling back migration: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "latest migration rolled back")
				return err
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := load()
				if err != nil {
					return err
				}
				db, err := database.Open(database.ConfigFrom(cfg.Database))
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close() //nolint:errcheck // CLI exit path

				applied, pending, err := db.GetMigrationStatus(cmd.Context())
				if err != nil {
					return fmt.Errorf("reading migration status: %w", err)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT") //nolint:errcheck // flushed below
				for _, m := range applied {
					fmt.Fprintf(w, "%s\tapplied\t%s\n", m.Version, m.AppliedAt.Format(time.RFC3339)) //nolint:errcheck // flushed below
				}
				for _, m := range pending {
					fmt.Fprintf(w, "%s\tpending\t-\n", m.Version) //nolint:errcheck // flushed below
				}
				return w.Flush()
			},
		},
	)
	return cmd
}
