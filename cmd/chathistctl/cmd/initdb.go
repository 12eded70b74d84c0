package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the archive database if it does not exist",
	Long: `initdb opens (creating if necessary) the archive's SQLite database
and ensures its schema is up to date. It is safe to run multiple times.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := cfg.DatabaseDSN()
		logger.Info("initializing archive database", "path", dbPath)

		st, err := reg.Load(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}

		datasets, err := st.Datasets()
		if err != nil {
			return fmt.Errorf("list datasets: %w", err)
		}

		fmt.Printf("Database: %s\n", dbPath)
		fmt.Printf("  Datasets: %d\n", len(datasets))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initdbCmd)
}
