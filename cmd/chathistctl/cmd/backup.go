package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var backupAsync bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the archive database",
	Long: `backup copies the archive database into <data dir>/_backups,
compresses it into a timestamped zip, and retains only the 3 newest
backups. The backup.retain config setting is not consulted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := reg.Load(cfg.DatabaseDSN())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}

		now := time.Now()
		if backupAsync {
			handle, err := st.BackupAsync(cfg.Data.DataDir, now)
			if err != nil {
				return fmt.Errorf("start backup: %w", err)
			}
			logger.Info("backup compression running in background")
			zipPath, err := handle.Wait()
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			fmt.Printf("Backup written to %s\n", zipPath)
			return nil
		}

		zipPath, err := st.Backup(cfg.Data.DataDir, now)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		fmt.Printf("Backup written to %s\n", zipPath)
		return nil
	},
}

func init() {
	backupCmd.Flags().BoolVar(&backupAsync, "async", false, "run compression on a separate task and wait for it explicitly")
	rootCmd.AddCommand(backupCmd)
}
