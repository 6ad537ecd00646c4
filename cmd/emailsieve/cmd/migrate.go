package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/bigcats-cc/email-sieve/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the decision journal schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.MigrateUp(database); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		statuses, err := db.MigrateStatus(database)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MIGRATION\tSTATUS\tAPPLIED AT\tDURATION")
		for _, s := range statuses {
			if !s.Applied {
				fmt.Fprintf(tw, "%s\tpending\t-\t-\n", s.ID)
				continue
			}
			fmt.Fprintf(tw, "%s\tapplied\t%s\t%s\n", s.ID, s.AppliedAt.Format("2006-01-02 15:04:05"), s.Duration)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}

// openDatabase opens the journal database from --db-url or database.url.
func openDatabase() (*sqlx.DB, error) {
	url := dbURL
	if url == "" {
		cfg, err := loadServiceConfig()
		if err != nil {
			return nil, err
		}
		url = cfg.Database.URL
	}
	if url == "" {
		return nil, fmt.Errorf("--db-url required")
	}

	database, err := db.Open(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}
