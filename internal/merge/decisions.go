// Package merge implements the merger (SPEC_FULL.md §4.7): given a master
// dataset, a slave dataset and a caller-supplied decision for every user and
// chat on both sides, it builds a fresh persistent store combining them.
package merge

import "github.com/archivekeep/chathist/internal/diffanalyzer"

// UserMergeDecision disposes of one user from master, slave, or both.
type UserMergeDecision interface {
	isUserMergeDecision()
	masterUserID() (int64, bool)
	slaveUserID() (int64, bool)
}

// RetainUser keeps a master-only user unchanged.
type RetainUser struct{ MasterID int64 }

// MatchOrDontReplaceUser keeps the master copy of a user present in both
// datasets under the same id, whether or not the two sides actually agree.
type MatchOrDontReplaceUser struct{ ID int64 }

// ReplaceUser takes the slave copy of a user present in both datasets under
// the same id.
type ReplaceUser struct{ ID int64 }

// AddUser copies a slave-only user into the merged dataset.
type AddUser struct{ SlaveID int64 }

// DontAddUser drops a slave-only user. Illegal if that user is a member of
// any chat selected for inclusion.
type DontAddUser struct{ SlaveID int64 }

func (RetainUser) isUserMergeDecision()              {}
func (MatchOrDontReplaceUser) isUserMergeDecision()  {}
func (ReplaceUser) isUserMergeDecision()             {}
func (AddUser) isUserMergeDecision()                 {}
func (DontAddUser) isUserMergeDecision()             {}

func (d RetainUser) masterUserID() (int64, bool)             { return d.MasterID, true }
func (d MatchOrDontReplaceUser) masterUserID() (int64, bool) { return d.ID, true }
func (d ReplaceUser) masterUserID() (int64, bool)            { return d.ID, true }
func (d AddUser) masterUserID() (int64, bool)                { return 0, false }
func (d DontAddUser) masterUserID() (int64, bool)            { return 0, false }

func (d RetainUser) slaveUserID() (int64, bool)             { return 0, false }
func (d MatchOrDontReplaceUser) slaveUserID() (int64, bool) { return d.ID, true }
func (d ReplaceUser) slaveUserID() (int64, bool)            { return d.ID, true }
func (d AddUser) slaveUserID() (int64, bool)                { return d.SlaveID, true }
func (d DontAddUser) slaveUserID() (int64, bool)            { return d.SlaveID, true }

// ChatMergeDecision disposes of one chat from master, slave, or both.
type ChatMergeDecision interface {
	isChatMergeDecision()
	masterChatID() (int64, bool)
	slaveChatID() (int64, bool)
}

// RetainChat keeps a master-only chat, copying all its messages.
type RetainChat struct{ MasterChatID int64 }

// AddChat copies a slave-only chat wholesale.
type AddChat struct{ SlaveChatID int64 }

// DontAddChat drops a slave-only chat entirely.
type DontAddChat struct{ SlaveChatID int64 }

// MergeChat combines a chat present on both sides according to an ordered
// list of section decisions covering the diff analyzer's output.
type MergeChat struct {
	ChatID        int64
	MessageMerges []MessagesMergeDecision
}

func (RetainChat) isChatMergeDecision() {}
func (AddChat) isChatMergeDecision()    {}
func (DontAddChat) isChatMergeDecision() {}
func (MergeChat) isChatMergeDecision()  {}

func (d RetainChat) masterChatID() (int64, bool) { return d.MasterChatID, true }
func (d AddChat) masterChatID() (int64, bool)    { return 0, false }
func (d DontAddChat) masterChatID() (int64, bool) { return 0, false }
func (d MergeChat) masterChatID() (int64, bool)  { return d.ChatID, true }

func (d RetainChat) slaveChatID() (int64, bool)  { return 0, false }
func (d AddChat) slaveChatID() (int64, bool)     { return d.SlaveChatID, true }
func (d DontAddChat) slaveChatID() (int64, bool) { return d.SlaveChatID, true }
func (d MergeChat) slaveChatID() (int64, bool)   { return d.ChatID, true }

// MessagesMergeDecision disposes of one diff-analyzer section.
type MessagesMergeDecision interface {
	isMessagesMergeDecision()
	section() diffanalyzer.Section
}

// MatchSection keeps whichever side actually has more attachments present on
// disk for each paired message, ties going to master.
type MatchSection struct{ Section diffanalyzer.Section }

// RetainSection keeps the master slice of a master-only stretch.
type RetainSection struct{ Section diffanalyzer.Section }

// AddSection copies the slave slice of a slave-only stretch.
type AddSection struct{ Section diffanalyzer.Section }

// DontAddSection drops a slave-only stretch.
type DontAddSection struct{ Section diffanalyzer.Section }

// ReplaceSection resolves a conflict in slave's favor.
type ReplaceSection struct{ Section diffanalyzer.Section }

// DontReplaceSection resolves a conflict in master's favor.
type DontReplaceSection struct{ Section diffanalyzer.Section }

func (MatchSection) isMessagesMergeDecision()       {}
func (RetainSection) isMessagesMergeDecision()      {}
func (AddSection) isMessagesMergeDecision()         {}
func (DontAddSection) isMessagesMergeDecision()     {}
func (ReplaceSection) isMessagesMergeDecision()     {}
func (DontReplaceSection) isMessagesMergeDecision() {}

func (d MatchSection) section() diffanalyzer.Section       { return d.Section }
func (d RetainSection) section() diffanalyzer.Section      { return d.Section }
func (d AddSection) section() diffanalyzer.Section         { return d.Section }
func (d DontAddSection) section() diffanalyzer.Section      { return d.Section }
func (d ReplaceSection) section() diffanalyzer.Section     { return d.Section }
func (d DontReplaceSection) section() diffanalyzer.Section { return d.Section }
