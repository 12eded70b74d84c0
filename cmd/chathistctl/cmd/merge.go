package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/archivekeep/chathist/internal/dao"
	"github.com/archivekeep/chathist/internal/diffanalyzer"
	"github.com/archivekeep/chathist/internal/merge"
	"github.com/archivekeep/chathist/internal/model"
)

var (
	mergeSlaveDB   string
	mergeSlaveRoot string
	mergeOutDir    string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge this archive with another into a fresh combined archive",
	Long: `merge applies the following automatic policy, then writes the
combined result as a new database under --out:

  - a user present in only one archive is kept as-is;
  - a user present (by id) in both archives keeps the master copy;
  - a chat present in only one archive is copied wholesale;
  - a chat present (by id) in both archives is merged section by section
    using the diff analyzer run with --force: a match run at the very start
    and at the very end of the chat keeps, per message, whichever side has
    more attachments on disk; everything between them (master-only,
    slave-only and conflicting stretches alike) is one conflict resolved in
    master's favor, so only master's messages are kept there and slave-only
    messages are not added.

This is a reasonable default for scripted/unattended merges; a reviewer
wanting a different resolution for a specific user, chat or conflict should
call internal/merge directly instead of this subcommand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if mergeSlaveDB == "" {
			return fmt.Errorf("--slave is required")
		}
		if mergeOutDir == "" {
			return fmt.Errorf("--out is required")
		}

		master, err := reg.Load(cfg.DatabaseDSN())
		if err != nil {
			return fmt.Errorf("open master database: %w", err)
		}
		masterRoot := filepath.Dir(master.Path())

		slave, err := reg.Load(mergeSlaveDB)
		if err != nil {
			return fmt.Errorf("open slave database: %w", err)
		}
		slaveRoot := mergeSlaveRoot
		if slaveRoot == "" {
			slaveRoot = filepath.Dir(mergeSlaveDB)
		}

		masterDatasets, err := master.Datasets()
		if err != nil {
			return fmt.Errorf("list master datasets: %w", err)
		}
		slaveDatasets, err := slave.Datasets()
		if err != nil {
			return fmt.Errorf("list slave datasets: %w", err)
		}
		if len(masterDatasets) != 1 || len(slaveDatasets) != 1 {
			return fmt.Errorf("merge currently requires exactly one dataset per archive (master has %d, slave has %d)", len(masterDatasets), len(slaveDatasets))
		}

		m := merge.New(master, masterDatasets[0].UUID, masterRoot, slave, slaveDatasets[0].UUID, slaveRoot).WithLogger(logger)

		userDecisions, err := autoUserDecisions(master, masterDatasets[0].UUID, slave, slaveDatasets[0].UUID)
		if err != nil {
			return fmt.Errorf("plan user decisions: %w", err)
		}
		chatDecisions, err := autoChatDecisions(master, masterDatasets[0].UUID, masterRoot, slave, slaveDatasets[0].UUID, slaveRoot)
		if err != nil {
			return fmt.Errorf("plan chat decisions: %w", err)
		}

		result, err := m.Merge(mergeOutDir, userDecisions, chatDecisions)
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		defer result.Store.Close()

		fmt.Printf("Merged archive written to %s (dataset %s)\n", result.Store.Path(), result.DatasetUUID)
		return nil
	},
}

// autoUserDecisions applies the policy documented on mergeCmd: shared ids
// keep master's copy, one-sided ids are carried over as-is.
func autoUserDecisions(masterDAO dao.ReadDAO, masterDS uuid.UUID, slaveDAO dao.ReadDAO, slaveDS uuid.UUID) ([]merge.UserMergeDecision, error) {
	masterUsers, err := masterDAO.Users(masterDS)
	if err != nil {
		return nil, err
	}
	slaveUsers, err := slaveDAO.Users(slaveDS)
	if err != nil {
		return nil, err
	}

	masterIDs := make(map[int64]bool, len(masterUsers))
	for _, u := range masterUsers {
		masterIDs[u.ID] = true
	}

	var decisions []merge.UserMergeDecision
	for _, u := range masterUsers {
		decisions = append(decisions, merge.RetainUser{MasterID: u.ID})
	}
	for _, u := range slaveUsers {
		if masterIDs[u.ID] {
			// Already covered by the RetainUser above; upgrade it to the
			// shared-id decision kind instead of adding a duplicate.
			decisions = replaceRetainWithMatch(decisions, u.ID)
			continue
		}
		decisions = append(decisions, merge.AddUser{SlaveID: u.ID})
	}
	return decisions, nil
}

func replaceRetainWithMatch(decisions []merge.UserMergeDecision, id int64) []merge.UserMergeDecision {
	for i, d := range decisions {
		if r, ok := d.(merge.RetainUser); ok && r.MasterID == id {
			decisions[i] = merge.MatchOrDontReplaceUser{ID: id}
			return decisions
		}
	}
	return append(decisions, merge.MatchOrDontReplaceUser{ID: id})
}

// autoChatDecisions applies the policy documented on mergeCmd: one-sided
// chats are carried over wholesale, shared-id chats are merged section by
// section via the diff analyzer run with --force.
func autoChatDecisions(masterDAO dao.ReadDAO, masterDSUUID uuid.UUID, masterRoot string,
	slaveDAO dao.ReadDAO, slaveDSUUID uuid.UUID, slaveRoot string) ([]merge.ChatMergeDecision, error) {
	masterChats, err := masterDAO.Chats(masterDSUUID)
	if err != nil {
		return nil, err
	}
	slaveChats, err := slaveDAO.Chats(slaveDSUUID)
	if err != nil {
		return nil, err
	}
	slaveByID := make(map[int64]model.Chat, len(slaveChats))
	for _, c := range slaveChats {
		slaveByID[c.ID] = c
	}

	an := diffanalyzer.New(masterDAO, masterRoot, slaveDAO, slaveRoot)

	var decisions []merge.ChatMergeDecision
	seen := make(map[int64]bool)
	for _, mc := range masterChats {
		seen[mc.ID] = true
		if _, ok := slaveByID[mc.ID]; !ok {
			decisions = append(decisions, merge.RetainChat{MasterChatID: mc.ID})
			continue
		}

		sections, err := an.AnalyzeForce(masterDSUUID, mc.ID, slaveDSUUID, mc.ID)
		if err != nil {
			return nil, fmt.Errorf("analyze chat %d: %w", mc.ID, err)
		}
		var sectionDecisions []merge.MessagesMergeDecision
		for _, s := range sections {
			sectionDecisions = append(sectionDecisions, autoSectionDecision(s))
		}
		decisions = append(decisions, merge.MergeChat{ChatID: mc.ID, MessageMerges: sectionDecisions})
	}
	for _, sc := range slaveChats {
		if !seen[sc.ID] {
			decisions = append(decisions, merge.AddChat{SlaveChatID: sc.ID})
		}
	}
	return decisions, nil
}

func autoSectionDecision(s diffanalyzer.Section) merge.MessagesMergeDecision {
	switch s.Kind {
	case diffanalyzer.SectionMatch:
		return merge.MatchSection{Section: s}
	case diffanalyzer.SectionRetention:
		return merge.RetainSection{Section: s}
	case diffanalyzer.SectionAddition:
		return merge.AddSection{Section: s}
	default: // diffanalyzer.SectionConflict
		return merge.DontReplaceSection{Section: s}
	}
}

func init() {
	mergeCmd.Flags().StringVar(&mergeSlaveDB, "slave", "", "path to the slave database file")
	mergeCmd.Flags().StringVar(&mergeSlaveRoot, "slave-root", "", "attachments root for the slave archive (default: slave's directory)")
	mergeCmd.Flags().StringVar(&mergeOutDir, "out", "", "directory to write the merged archive into")
	rootCmd.AddCommand(mergeCmd)
}
