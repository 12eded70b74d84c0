package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/archivekeep/chathist/internal/bulkcopy"
)

var (
	copySrcDB   string
	copySrcRoot string
	copyWorkers int
)

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Bulk-copy every dataset from another archive into this one",
	Long: `copy implements copy_all_from: it reads every dataset, user, chat
and message from the archive at --src and inserts it into this archive's
database, copying attachments along the way. After copying, it runs a
practical-equality check between source and destination and fails if any
chat or message differs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if copySrcDB == "" {
			return fmt.Errorf("--src is required")
		}

		srcRoot := copySrcRoot
		if srcRoot == "" {
			srcRoot = filepath.Dir(copySrcDB)
		}

		src, err := reg.Load(copySrcDB)
		if err != nil {
			return fmt.Errorf("open source database: %w", err)
		}

		dst, err := reg.Load(cfg.DatabaseDSN())
		if err != nil {
			return fmt.Errorf("open destination database: %w", err)
		}
		dstRoot := filepath.Dir(dst.Path())

		logger.Info("copying archive", "src", copySrcDB, "dst", dst.Path(), "workers", copyWorkers)
		report, err := bulkcopy.CopyAllFrom(dst, src, srcRoot, dstRoot, copyWorkers)
		if err != nil {
			return fmt.Errorf("copy all from: %w", err)
		}

		fmt.Printf("Copied %d dataset(s), %d chat(s), %d message(s)\n", report.Datasets, report.Chats, report.Messages)
		return nil
	},
}

func init() {
	copyCmd.Flags().StringVar(&copySrcDB, "src", "", "path to the source database file")
	copyCmd.Flags().StringVar(&copySrcRoot, "src-root", "", "attachments root for the source archive (default: src's directory)")
	copyCmd.Flags().IntVar(&copyWorkers, "workers", bulkcopy.DefaultWorkers, "concurrent per-chat copy workers")
	rootCmd.AddCommand(copyCmd)
}
