package merge

import (
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/dao"
	"github.com/archivekeep/chathist/internal/diffanalyzer"
	"github.com/archivekeep/chathist/internal/filestore"
	"github.com/archivekeep/chathist/internal/model"
	"github.com/archivekeep/chathist/internal/store"
)

const batchSize = 1000

// Merger combines a master and a slave dataset into a fresh store under a
// target directory, per caller-supplied per-user and per-chat decisions.
type Merger struct {
	MasterDAO    dao.ReadDAO
	MasterDSUUID uuid.UUID
	MasterRoot   string

	SlaveDAO    dao.ReadDAO
	SlaveDSUUID uuid.UUID
	SlaveRoot   string

	logger *slog.Logger
}

// New builds a Merger over the given master/slave DAOs, datasets and
// dataset-root file store directories.
func New(masterDAO dao.ReadDAO, masterDSUUID uuid.UUID, masterRoot string,
	slaveDAO dao.ReadDAO, slaveDSUUID uuid.UUID, slaveRoot string) *Merger {
	return &Merger{
		MasterDAO: masterDAO, MasterDSUUID: masterDSUUID, MasterRoot: masterRoot,
		SlaveDAO: slaveDAO, SlaveDSUUID: slaveDSUUID, SlaveRoot: slaveRoot,
		logger: slog.Default(),
	}
}

// WithLogger overrides the merger's logger.
func (m *Merger) WithLogger(l *slog.Logger) *Merger {
	m.logger = l
	return m
}

// Result is the outcome of a successful merge.
type Result struct {
	Store      *store.Store
	DatasetUUID uuid.UUID
}

// Merge creates <targetDir>/data.sqlite and populates it per userMerges and
// chatMerges (SPEC_FULL.md §4.7). Every master and slave user/chat must
// appear in exactly one decision.
func (m *Merger) Merge(targetDir string, userMerges []UserMergeDecision, chatMerges []ChatMergeDecision) (*Result, error) {
	masterUsers, err := m.MasterDAO.Users(m.MasterDSUUID)
	if err != nil {
		return nil, err
	}
	slaveUsers, err := m.SlaveDAO.Users(m.SlaveDSUUID)
	if err != nil {
		return nil, err
	}
	masterChats, err := m.MasterDAO.Chats(m.MasterDSUUID)
	if err != nil {
		return nil, err
	}
	slaveChats, err := m.SlaveDAO.Chats(m.SlaveDSUUID)
	if err != nil {
		return nil, err
	}

	if err := validateUserCoverage(userMerges, masterUsers, slaveUsers); err != nil {
		return nil, err
	}
	if err := validateChatCoverage(chatMerges, masterChats, slaveChats); err != nil {
		return nil, err
	}

	masterSelf, err := findSelf(masterUsers)
	if err != nil {
		return nil, apperr.Wrap(apperr.Invariant, err, "master dataset")
	}
	slaveSelf, err := findSelf(slaveUsers)
	if err != nil {
		return nil, apperr.Wrap(apperr.Invariant, err, "slave dataset")
	}
	if masterSelf.ID != slaveSelf.ID {
		return nil, apperr.New(apperr.Invariant, "myself of merged datasets doesn't match: master=%d slave=%d", masterSelf.ID, slaveSelf.ID)
	}

	masterUserByID := indexUsers(masterUsers)
	slaveUserByID := indexUsers(slaveUsers)
	masterChatByID := indexChats(masterChats)
	slaveChatByID := indexChats(slaveChats)

	selectedChatMembers := selectedMembers(chatMerges, masterChatByID, slaveChatByID)

	st, err := store.Open(filepath.Join(targetDir, "data.sqlite"))
	if err != nil {
		return nil, err
	}
	newDSUUID := uuid.New()
	newAlias := masterAliasFor(m.MasterDAO, m.MasterDSUUID) + " (merged)"
	if err := st.InsertDataset(model.Dataset{UUID: newDSUUID, Alias: newAlias}); err != nil {
		st.Close()
		return nil, err
	}

	if err := m.insertUsers(st, newDSUUID, userMerges, masterUserByID, slaveUserByID, masterSelf.ID, selectedChatMembers); err != nil {
		st.Close()
		return nil, err
	}
	finalUsers, err := st.Users(newDSUUID)
	if err != nil {
		st.Close()
		return nil, err
	}
	finalUserByID := indexUsers(finalUsers)

	if err := m.insertChats(st, newDSUUID, chatMerges, masterChatByID, slaveChatByID, finalUserByID, masterSelf.ID); err != nil {
		st.Close()
		return nil, err
	}

	m.logger.Info("datasets merged", "new_dataset", newDSUUID, "users", len(finalUsers), "chats", len(chatMerges))
	return &Result{Store: st, DatasetUUID: newDSUUID}, nil
}

func masterAliasFor(d dao.ReadDAO, dsUUID uuid.UUID) string {
	datasets, err := d.Datasets()
	if err != nil {
		return ""
	}
	for _, ds := range datasets {
		if ds.UUID == dsUUID {
			return ds.Alias
		}
	}
	return ""
}

func findSelf(users []model.User) (model.User, error) {
	for _, u := range users {
		if u.IsMyself {
			return u, nil
		}
	}
	return model.User{}, apperr.New(apperr.Invariant, "no self user found")
}

func indexUsers(users []model.User) map[int64]model.User {
	out := make(map[int64]model.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out
}

func indexChats(chats []model.Chat) map[int64]model.Chat {
	out := make(map[int64]model.Chat, len(chats))
	for _, c := range chats {
		out[c.ID] = c
	}
	return out
}

func validateUserCoverage(decisions []UserMergeDecision, masterUsers, slaveUsers []model.User) error {
	masterSeen := make(map[int64]bool)
	slaveSeen := make(map[int64]bool)
	for _, d := range decisions {
		if id, ok := d.masterUserID(); ok {
			if masterSeen[id] {
				return apperr.New(apperr.InputShape, "master user %d is mentioned in more than one merge decision", id)
			}
			masterSeen[id] = true
		}
		if id, ok := d.slaveUserID(); ok {
			if slaveSeen[id] {
				return apperr.New(apperr.InputShape, "slave user %d is mentioned in more than one merge decision", id)
			}
			slaveSeen[id] = true
		}
	}
	for _, u := range masterUsers {
		if !masterSeen[u.ID] {
			return apperr.New(apperr.InputShape, "master user %d wasn't mentioned in merge decisions", u.ID)
		}
	}
	for _, u := range slaveUsers {
		if !slaveSeen[u.ID] {
			return apperr.New(apperr.InputShape, "slave user %d wasn't mentioned in merge decisions", u.ID)
		}
	}
	return nil
}

func validateChatCoverage(decisions []ChatMergeDecision, masterChats, slaveChats []model.Chat) error {
	masterSeen := make(map[int64]bool)
	slaveSeen := make(map[int64]bool)
	for _, d := range decisions {
		if id, ok := d.masterChatID(); ok {
			if masterSeen[id] {
				return apperr.New(apperr.InputShape, "master chat %d is mentioned in more than one merge decision", id)
			}
			masterSeen[id] = true
		}
		if id, ok := d.slaveChatID(); ok {
			if slaveSeen[id] {
				return apperr.New(apperr.InputShape, "slave chat %d is mentioned in more than one merge decision", id)
			}
			slaveSeen[id] = true
		}
	}
	for _, c := range masterChats {
		if !masterSeen[c.ID] {
			return apperr.New(apperr.InputShape, "master chat %d wasn't mentioned in merge decisions", c.ID)
		}
	}
	for _, c := range slaveChats {
		if !slaveSeen[c.ID] {
			return apperr.New(apperr.InputShape, "slave chat %d wasn't mentioned in merge decisions", c.ID)
		}
	}
	return nil
}

// selectedMembers collects every member id of every chat that will actually
// be inserted, so DontAddUser can be checked against it.
func selectedMembers(chatMerges []ChatMergeDecision, masterChatByID, slaveChatByID map[int64]model.Chat) map[int64]bool {
	out := make(map[int64]bool)
	for _, cm := range chatMerges {
		var chat model.Chat
		var ok bool
		switch d := cm.(type) {
		case RetainChat:
			chat, ok = masterChatByID[d.MasterChatID]
		case AddChat:
			chat, ok = slaveChatByID[d.SlaveChatID]
		case MergeChat:
			chat, ok = slaveChatByID[d.ChatID]
		case DontAddChat:
			continue
		}
		if !ok {
			continue
		}
		for _, id := range chat.MemberIDs {
			out[id] = true
		}
	}
	return out
}

func (m *Merger) insertUsers(st *store.Store, newDSUUID uuid.UUID, decisions []UserMergeDecision,
	masterUserByID, slaveUserByID map[int64]model.User, masterSelfID int64, selectedChatMembers map[int64]bool) error {
	for _, d := range decisions {
		var u model.User
		var ok bool
		switch dec := d.(type) {
		case RetainUser:
			u, ok = masterUserByID[dec.MasterID]
		case MatchOrDontReplaceUser:
			u, ok = masterUserByID[dec.ID]
		case ReplaceUser:
			u, ok = slaveUserByID[dec.ID]
		case AddUser:
			u, ok = slaveUserByID[dec.SlaveID]
		case DontAddUser:
			if selectedChatMembers[dec.SlaveID] {
				return apperr.New(apperr.Invariant, "cannot skip user %d because it's used in a chat that wasn't skipped", dec.SlaveID)
			}
			continue
		}
		if !ok {
			continue
		}
		u.DatasetUUID = newDSUUID
		u.IsMyself = u.ID == masterSelfID
		if err := st.InsertUser(u); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merger) insertChats(st *store.Store, newDSUUID uuid.UUID, decisions []ChatMergeDecision,
	masterChatByID, slaveChatByID map[int64]model.Chat, finalUserByID map[int64]model.User, masterSelfID int64) error {
	for _, cm := range decisions {
		switch d := cm.(type) {
		case DontAddChat:
			continue
		case RetainChat:
			chat, ok := masterChatByID[d.MasterChatID]
			if !ok {
				continue
			}
			if err := m.insertOneChat(st, newDSUUID, chat, m.MasterRoot, finalUserByID, masterSelfID); err != nil {
				return err
			}
			if err := m.copyAllMessages(st, newDSUUID, chat, m.MasterDAO, m.MasterDSUUID, m.MasterRoot, finalUserByID); err != nil {
				return err
			}
		case AddChat:
			chat, ok := slaveChatByID[d.SlaveChatID]
			if !ok {
				continue
			}
			if err := m.insertOneChat(st, newDSUUID, chat, m.SlaveRoot, finalUserByID, masterSelfID); err != nil {
				return err
			}
			if err := m.copyAllMessages(st, newDSUUID, chat, m.SlaveDAO, m.SlaveDSUUID, m.SlaveRoot, finalUserByID); err != nil {
				return err
			}
		case MergeChat:
			chat, ok := slaveChatByID[d.ChatID]
			if !ok {
				continue
			}
			if err := m.insertOneChat(st, newDSUUID, chat, m.SlaveRoot, finalUserByID, masterSelfID); err != nil {
				return err
			}
			masterChat := masterChatByID[d.ChatID]
			if err := m.mergeChatMessages(st, newDSUUID, chat.ID, masterChat, chat, d.MessageMerges, finalUserByID); err != nil {
				return err
			}
		}
	}
	return nil
}

// insertOneChat rewrites the chat's name for Personal chats per the final
// (post-merge) user set, then inserts the chat row and copies its image.
func (m *Merger) insertOneChat(st *store.Store, newDSUUID uuid.UUID, chat model.Chat, srcRoot string,
	finalUserByID map[int64]model.User, selfID int64) error {
	chat.DatasetUUID = newDSUUID
	if chat.Type == model.ChatPersonal {
		var others []int64
		for _, id := range chat.MemberIDs {
			if id != selfID {
				others = append(others, id)
			}
		}
		if len(others) > 1 {
			return apperr.New(apperr.Invariant, "personal chat %d has multiple other members: %v", chat.ID, others)
		}
		if len(others) == 1 {
			if u, ok := finalUserByID[others[0]]; ok {
				name := u.PrettyName()
				chat.Name = &name
			} else {
				chat.Name = nil
			}
		} else {
			chat.Name = nil
		}
	}
	chat.MsgCount = 0
	return st.InsertChat(chat, srcRoot, storeAttachmentsRoot(st, newDSUUID))
}

// storeAttachmentsRoot resolves the destination dataset-root directory for a
// newly created dataset inside st's storage tree.
func storeAttachmentsRoot(st *store.Store, dsUUID uuid.UUID) string {
	return filepath.Join(filepath.Dir(st.Path()), dsUUID.String())
}

func (m *Merger) copyAllMessages(st *store.Store, newDSUUID uuid.UUID, srcChat model.Chat,
	srcDAO dao.ReadDAO, srcDSUUID uuid.UUID, srcRoot string, finalUserByID map[int64]model.User) error {
	offset := 0
	total := 0
	for {
		batch, err := srcDAO.Scroll(srcDSUUID, srcChat.ID, offset, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		fixupMembersBatch(batch, srcChat, finalUserByID)
		if _, err := st.InsertMessages(newDSUUID, srcChat.ID, batch, srcRoot, storeAttachmentsRoot(st, newDSUUID)); err != nil {
			return err
		}
		total += len(batch)
		offset += batchSize
	}
	return m.finalizeChatCount(st, newDSUUID, srcChat.ID, total)
}

func (m *Merger) mergeChatMessages(st *store.Store, newDSUUID uuid.UUID, chatID int64,
	masterChat, slaveChat model.Chat, sections []MessagesMergeDecision, finalUserByID map[int64]model.User) error {
	total := 0
	dstRoot := storeAttachmentsRoot(st, newDSUUID)
	for _, sec := range sections {
		n, err := m.insertSection(st, newDSUUID, chatID, masterChat, slaveChat, sec, finalUserByID, dstRoot)
		if err != nil {
			return err
		}
		total += n
	}
	return m.finalizeChatCount(st, newDSUUID, chatID, total)
}

func (m *Merger) insertSection(st *store.Store, newDSUUID uuid.UUID, chatID int64,
	masterChat, slaveChat model.Chat, dec MessagesMergeDecision, finalUserByID map[int64]model.User, dstRoot string) (int, error) {
	switch d := dec.(type) {
	case MatchSection:
		return m.insertMatchSection(st, newDSUUID, chatID, masterChat, slaveChat, d.Section, finalUserByID, dstRoot)
	case RetainSection:
		return m.insertSideSlice(st, newDSUUID, chatID, masterChat, m.MasterDAO, m.MasterDSUUID, m.MasterRoot,
			d.Section.FirstM, d.Section.LastM, finalUserByID, dstRoot)
	case DontReplaceSection:
		return m.insertSideSlice(st, newDSUUID, chatID, masterChat, m.MasterDAO, m.MasterDSUUID, m.MasterRoot,
			d.Section.FirstM, d.Section.LastM, finalUserByID, dstRoot)
	case AddSection:
		return m.insertSideSlice(st, newDSUUID, chatID, slaveChat, m.SlaveDAO, m.SlaveDSUUID, m.SlaveRoot,
			d.Section.FirstS, d.Section.LastS, finalUserByID, dstRoot)
	case ReplaceSection:
		return m.insertSideSlice(st, newDSUUID, chatID, slaveChat, m.SlaveDAO, m.SlaveDSUUID, m.SlaveRoot,
			d.Section.FirstS, d.Section.LastS, finalUserByID, dstRoot)
	case DontAddSection:
		return 0, nil
	}
	return 0, nil
}

func (m *Merger) insertSideSlice(st *store.Store, newDSUUID uuid.UUID, chatID int64, srcChat model.Chat,
	srcDAO dao.ReadDAO, srcDSUUID uuid.UUID, srcRoot string, firstID, lastID int64,
	finalUserByID map[int64]model.User, dstRoot string) (int, error) {
	if firstID == 0 && lastID == 0 {
		return 0, nil
	}
	msgs, err := srcDAO.Slice(srcDSUUID, srcChat.ID, firstID, lastID)
	if err != nil {
		return 0, err
	}
	total := 0
	for start := 0; start < len(msgs); start += batchSize {
		end := start + batchSize
		if end > len(msgs) {
			end = len(msgs)
		}
		batch := cloneMessages(msgs[start:end])
		fixupMembersBatch(batch, srcChat, finalUserByID)
		if _, err := st.InsertMessages(newDSUUID, chatID, batch, srcRoot, dstRoot); err != nil {
			return total, err
		}
		total += len(batch)
	}
	return total, nil
}

// insertMatchSection zips a Match section's paired master/slave messages,
// choosing whichever side has more attachments actually present on disk
// (ties to master), grouping consecutive same-source picks into batches.
func (m *Merger) insertMatchSection(st *store.Store, newDSUUID uuid.UUID, chatID int64,
	masterChat, slaveChat model.Chat, sec diffanalyzer.Section, finalUserByID map[int64]model.User, dstRoot string) (int, error) {
	masterMsgs, err := m.MasterDAO.Slice(m.MasterDSUUID, masterChat.ID, sec.FirstM, sec.LastM)
	if err != nil {
		return 0, err
	}
	slaveMsgs, err := m.SlaveDAO.Slice(m.SlaveDSUUID, slaveChat.ID, sec.FirstS, sec.LastS)
	if err != nil {
		return 0, err
	}
	if len(masterMsgs) != len(slaveMsgs) {
		return 0, apperr.New(apperr.Invariant, "match section for chat %d has mismatched lengths: master=%d slave=%d", chatID, len(masterMsgs), len(slaveMsgs))
	}

	type picked struct {
		msg      model.Message
		fromSlave bool
	}
	picks := make([]picked, len(masterMsgs))
	for i := range masterMsgs {
		mCount := countPresentAttachments(masterMsgs[i], m.MasterRoot)
		sCount := countPresentAttachments(slaveMsgs[i], m.SlaveRoot)
		if sCount > mCount {
			picks[i] = picked{msg: slaveMsgs[i], fromSlave: true}
		} else {
			picks[i] = picked{msg: masterMsgs[i], fromSlave: false}
		}
	}

	total := 0
	i := 0
	for i < len(picks) {
		j := i + 1
		for j < len(picks) && picks[j].fromSlave == picks[i].fromSlave {
			j++
		}
		srcChat, srcRoot := masterChat, m.MasterRoot
		if picks[i].fromSlave {
			srcChat, srcRoot = slaveChat, m.SlaveRoot
		}
		batch := make([]model.Message, 0, j-i)
		for _, p := range picks[i:j] {
			batch = append(batch, p.msg)
		}
		fixupMembersBatch(batch, srcChat, finalUserByID)
		if _, err := st.InsertMessages(newDSUUID, chatID, batch, srcRoot, dstRoot); err != nil {
			return total, err
		}
		total += len(batch)
		i = j
	}
	return total, nil
}

// countPresentAttachments counts this message's path fields that actually
// exist on disk under root, since a present-but-dangling path field must not
// win the attachment tiebreak in insertMatchSection.
func countPresentAttachments(msg model.Message, root string) int {
	count := 0
	var content *model.Content
	if r, ok := msg.Typed.(*model.Regular); ok {
		content = r.Content
	} else if s, ok := msg.Typed.(*model.Service); ok {
		content = s.Photo
	}
	if content == nil {
		return 0
	}
	for _, p := range content.PathFields() {
		if p != nil && *p != "" && filestore.FileExists(root, *p) {
			count++
		}
	}
	return count
}

// fixupMembersBatch rewrites each message's member list (if any) by
// resolving each name through srcChat's member set and substituting the
// resolved user's pretty name in the final (merged) user set. Unresolved
// names are kept verbatim.
func fixupMembersBatch(batch []model.Message, srcChat model.Chat, finalUserByID map[int64]model.User) {
	byName := chatMembersByName(srcChat, finalUserByID)
	for i := range batch {
		svc, ok := batch[i].Typed.(*model.Service)
		if !ok || !svc.Kind.HasMembers() || len(svc.Members) == 0 {
			continue
		}
		rewritten := make([]string, len(svc.Members))
		for j, name := range svc.Members {
			if u, ok := byName[name]; ok {
				rewritten[j] = u.PrettyName()
			} else {
				rewritten[j] = name
			}
		}
		clone := *svc
		clone.Members = rewritten
		batch[i].Typed = &clone
	}
}

// chatMembersByName resolves each member of srcChat to a name->user mapping,
// the way practical equality's NameResolver does, but keyed by the member's
// own pretty name so it can be looked up from a raw members string.
func chatMembersByName(srcChat model.Chat, finalUserByID map[int64]model.User) map[string]model.User {
	out := make(map[string]model.User, len(srcChat.MemberIDs))
	for _, id := range srcChat.MemberIDs {
		if u, ok := finalUserByID[id]; ok {
			out[u.PrettyName()] = u
		}
	}
	return out
}

func (m *Merger) finalizeChatCount(st *store.Store, dsUUID uuid.UUID, chatID int64, count int) error {
	chat, err := st.ChatOption(dsUUID, chatID)
	if err != nil {
		return err
	}
	if chat == nil {
		return apperr.New(apperr.NotFound, "chat %d not found after insert", chatID)
	}
	chat.MsgCount = int32(count)
	return st.UpdateChat(dsUUID, chatID, *chat, func(int64, int64) error { return nil })
}

func cloneMessages(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}
