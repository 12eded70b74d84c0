package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/archivekeep/chathist/internal/diffanalyzer"
)

var (
	diffSlaveDB   string
	diffSlaveRoot string
	diffForce     bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <master-dataset-uuid> <master-chat-id> <slave-dataset-uuid> <slave-chat-id>",
	Short: "Compare one chat across two archives",
	Long: `diff runs the diff analyzer over one chat present in this archive
(master) and one chat in another archive opened with --slave (slave),
printing the resulting sections (match/retention/addition/conflict).

Timestamps that differ by a constant shift across every matched message are
reported as an ambiguous time-shift error rather than a conflict, with or
without --force. --force keeps a match run at the very start and at the very
end of the comparison and collapses everything between them into a single
coarse conflict section.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		if diffSlaveDB == "" {
			return fmt.Errorf("--slave is required")
		}

		masterDSUUID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parse master dataset uuid: %w", err)
		}
		var masterChatID int64
		if _, err := fmt.Sscanf(args[1], "%d", &masterChatID); err != nil {
			return fmt.Errorf("parse master chat id: %w", err)
		}
		slaveDSUUID, err := uuid.Parse(args[2])
		if err != nil {
			return fmt.Errorf("parse slave dataset uuid: %w", err)
		}
		var slaveChatID int64
		if _, err := fmt.Sscanf(args[3], "%d", &slaveChatID); err != nil {
			return fmt.Errorf("parse slave chat id: %w", err)
		}

		master, err := reg.Load(cfg.DatabaseDSN())
		if err != nil {
			return fmt.Errorf("open master database: %w", err)
		}
		masterRoot := filepath.Dir(master.Path())

		slave, err := reg.Load(diffSlaveDB)
		if err != nil {
			return fmt.Errorf("open slave database: %w", err)
		}
		slaveRoot := diffSlaveRoot
		if slaveRoot == "" {
			slaveRoot = filepath.Dir(diffSlaveDB)
		}

		an := diffanalyzer.New(master, masterRoot, slave, slaveRoot).WithLogger(logger)

		var sections []diffanalyzer.Section
		if diffForce {
			sections, err = an.AnalyzeForce(masterDSUUID, masterChatID, slaveDSUUID, slaveChatID)
		} else {
			sections, err = an.Analyze(masterDSUUID, masterChatID, slaveDSUUID, slaveChatID)
		}
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}

		for _, s := range sections {
			printSection(s)
		}
		return nil
	},
}

func printSection(s diffanalyzer.Section) {
	switch s.Kind {
	case diffanalyzer.SectionMatch:
		fmt.Printf("match     master[%d..%d] slave[%d..%d]\n", s.FirstM, s.LastM, s.FirstS, s.LastS)
	case diffanalyzer.SectionRetention:
		fmt.Printf("retention master[%d..%d]\n", s.FirstM, s.LastM)
	case diffanalyzer.SectionAddition:
		fmt.Printf("addition  slave[%d..%d]\n", s.FirstS, s.LastS)
	case diffanalyzer.SectionConflict:
		fmt.Printf("conflict  master[%d..%d] slave[%d..%d]\n", s.FirstM, s.LastM, s.FirstS, s.LastS)
	}
}

func init() {
	diffCmd.Flags().StringVar(&diffSlaveDB, "slave", "", "path to the slave database file")
	diffCmd.Flags().StringVar(&diffSlaveRoot, "slave-root", "", "attachments root for the slave archive (default: slave's directory)")
	diffCmd.Flags().BoolVar(&diffForce, "force", false, "collapse everything between the leading and trailing match runs into a single conflict section")
	rootCmd.AddCommand(diffCmd)
}
