// Package memdao implements the in-memory DAO (SPEC_FULL.md §4.3): it
// serves the same read contract as the persistent store against plain Go
// slices and maps, and is the usual source side of a bulk copy into a
// persistent store. It is populated directly by importers, never by SQL.
package memdao

import (
	"sort"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/filestore"
	"github.com/archivekeep/chathist/internal/model"
)

type chatData struct {
	chat     model.Chat
	messages []model.Message // ascending by InternalID
}

type datasetData struct {
	dataset model.Dataset
	users   []model.User
	chats   map[int64]*chatData
}

// Dao is the in-memory DAO.
type Dao struct {
	datasets map[uuid.UUID]*datasetData
	root     string // dataset-root file store directory for IsLoaded
}

// New returns an empty in-memory DAO whose attachments resolve under root.
func New(root string) *Dao {
	return &Dao{datasets: make(map[uuid.UUID]*datasetData), root: root}
}

// PutDataset registers a dataset with its users and chats. Intended for
// importer construction, not general mutation — see InsertDataset's
// NotSupported.
func (d *Dao) PutDataset(ds model.Dataset, users []model.User, chats []model.Chat) {
	dd := &datasetData{dataset: ds, users: users, chats: make(map[int64]*chatData)}
	for _, c := range chats {
		dd.chats[c.ID] = &chatData{chat: c}
	}
	d.datasets[ds.UUID] = dd
}

// PutMessages appends messages (already in ascending InternalID order) to a
// chat.
func (d *Dao) PutMessages(dsUUID uuid.UUID, chatID int64, messages []model.Message) error {
	dd, ok := d.datasets[dsUUID]
	if !ok {
		return apperr.New(apperr.NotFound, "dataset %s not found", dsUUID)
	}
	cd, ok := dd.chats[chatID]
	if !ok {
		return apperr.New(apperr.NotFound, "chat %d not found in dataset %s", chatID, dsUUID)
	}
	cd.messages = append(cd.messages, messages...)
	return nil
}

func (d *Dao) Datasets() ([]model.Dataset, error) {
	out := make([]model.Dataset, 0, len(d.datasets))
	for _, dd := range d.datasets {
		out = append(out, dd.dataset)
	}
	return out, nil
}

func (d *Dao) Users(dsUUID uuid.UUID) ([]model.User, error) {
	dd, ok := d.datasets[dsUUID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "dataset %s not found", dsUUID)
	}
	out := make([]model.User, len(dd.users))
	copy(out, dd.users)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsMyself != out[j].IsMyself {
			return out[i].IsMyself
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *Dao) Chats(dsUUID uuid.UUID) ([]model.Chat, error) {
	dd, ok := d.datasets[dsUUID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "dataset %s not found", dsUUID)
	}
	out := make([]model.Chat, 0, len(dd.chats))
	for _, cd := range dd.chats {
		out = append(out, cd.chat)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := lastTimestamp(dd.chats[out[i].ID]), lastTimestamp(dd.chats[out[j].ID])
		if ti != tj {
			return ti > tj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func lastTimestamp(cd *chatData) int64 {
	if len(cd.messages) == 0 {
		return -1
	}
	return cd.messages[len(cd.messages)-1].Timestamp
}

func (d *Dao) ChatOption(dsUUID uuid.UUID, chatID int64) (*model.Chat, error) {
	dd, ok := d.datasets[dsUUID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "dataset %s not found", dsUUID)
	}
	cd, ok := dd.chats[chatID]
	if !ok {
		return nil, nil
	}
	c := cd.chat
	return &c, nil
}

func (d *Dao) chatMessages(dsUUID uuid.UUID, chatID int64) ([]model.Message, error) {
	dd, ok := d.datasets[dsUUID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "dataset %s not found", dsUUID)
	}
	cd, ok := dd.chats[chatID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "chat %d not found in dataset %s", chatID, dsUUID)
	}
	return cd.messages, nil
}

func (d *Dao) First(dsUUID uuid.UUID, chatID int64, n int) ([]model.Message, error) {
	msgs, err := d.chatMessages(dsUUID, chatID)
	if err != nil {
		return nil, err
	}
	if n > len(msgs) {
		n = len(msgs)
	}
	return cloneSlice(msgs[:n]), nil
}

func (d *Dao) Last(dsUUID uuid.UUID, chatID int64, n int) ([]model.Message, error) {
	msgs, err := d.chatMessages(dsUUID, chatID)
	if err != nil {
		return nil, err
	}
	if n > len(msgs) {
		n = len(msgs)
	}
	return cloneSlice(msgs[len(msgs)-n:]), nil
}

func (d *Dao) Scroll(dsUUID uuid.UUID, chatID int64, offset, n int) ([]model.Message, error) {
	msgs, err := d.chatMessages(dsUUID, chatID)
	if err != nil {
		return nil, err
	}
	if offset >= len(msgs) {
		return nil, nil
	}
	end := offset + n
	if end > len(msgs) {
		end = len(msgs)
	}
	return cloneSlice(msgs[offset:end]), nil
}

func (d *Dao) Before(dsUUID uuid.UUID, chatID, internalID int64, n int) ([]model.Message, error) {
	msgs, err := d.chatMessages(dsUUID, chatID)
	if err != nil {
		return nil, err
	}
	idx := sort.Search(len(msgs), func(i int) bool { return msgs[i].InternalID >= internalID })
	start := idx - n
	if start < 0 {
		start = 0
	}
	return cloneSlice(msgs[start:idx]), nil
}

func (d *Dao) After(dsUUID uuid.UUID, chatID, internalID int64, n int) ([]model.Message, error) {
	msgs, err := d.chatMessages(dsUUID, chatID)
	if err != nil {
		return nil, err
	}
	idx := sort.Search(len(msgs), func(i int) bool { return msgs[i].InternalID > internalID })
	end := idx + n
	if end > len(msgs) {
		end = len(msgs)
	}
	return cloneSlice(msgs[idx:end]), nil
}

func (d *Dao) Slice(dsUUID uuid.UUID, chatID, id1, id2 int64) ([]model.Message, error) {
	if id1 > id2 {
		return nil, nil
	}
	msgs, err := d.chatMessages(dsUUID, chatID)
	if err != nil {
		return nil, err
	}
	lo := sort.Search(len(msgs), func(i int) bool { return msgs[i].InternalID >= id1 })
	hi := sort.Search(len(msgs), func(i int) bool { return msgs[i].InternalID > id2 })
	if lo >= hi {
		return nil, nil
	}
	return cloneSlice(msgs[lo:hi]), nil
}

func (d *Dao) SliceLen(dsUUID uuid.UUID, chatID, id1, id2 int64) (int, error) {
	msgs, err := d.Slice(dsUUID, chatID, id1, id2)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

func (d *Dao) AbbreviatedSlice(dsUUID uuid.UUID, chatID, id1, id2 int64, combinedLimit, abbreviatedLimit int) (left, right []model.Message, betweenCount int, err error) {
	all, err := d.Slice(dsUUID, chatID, id1, id2)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(all) <= combinedLimit {
		return all, nil, 0, nil
	}
	left = cloneSlice(all[:abbreviatedLimit])
	right = cloneSlice(all[len(all)-abbreviatedLimit:])
	betweenCount = len(all) - len(left) - len(right)
	return left, right, betweenCount, nil
}

func (d *Dao) MessageOption(dsUUID uuid.UUID, chatID, sourceID int64) (*model.Message, error) {
	msgs, err := d.chatMessages(dsUUID, chatID)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].SourceID != nil && *msgs[i].SourceID == sourceID {
			m := msgs[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (d *Dao) MessageOptionByInternalID(dsUUID uuid.UUID, chatID, internalID int64) (*model.Message, error) {
	msgs, err := d.chatMessages(dsUUID, chatID)
	if err != nil {
		return nil, err
	}
	idx := sort.Search(len(msgs), func(i int) bool { return msgs[i].InternalID >= internalID })
	if idx < len(msgs) && msgs[idx].InternalID == internalID {
		m := msgs[idx]
		return &m, nil
	}
	return nil, nil
}

func (d *Dao) IsLoaded(relPath string) bool {
	if d.root == "" {
		return false
	}
	return filestore.FileExists(d.root, relPath)
}

// ShiftDatasetTime mutates the timestamp of every message in the dataset
// (and, for regular messages, also EditTimestamp if set) by hours. Unlike
// the persistent store, the in-memory DAO supports this operation.
func (d *Dao) ShiftDatasetTime(dsUUID uuid.UUID, hours int) error {
	dd, ok := d.datasets[dsUUID]
	if !ok {
		return apperr.New(apperr.NotFound, "dataset %s not found", dsUUID)
	}
	shift := int64(hours) * 3600
	for _, cd := range dd.chats {
		for i := range cd.messages {
			cd.messages[i].Timestamp += shift
			if r, ok := cd.messages[i].Typed.(*model.Regular); ok && r.EditTimestamp != nil {
				shifted := *r.EditTimestamp + shift
				r.EditTimestamp = &shifted
			}
		}
	}
	return nil
}

func notSupported(op string) error {
	return apperr.New(apperr.NotSupported, "%s is not supported on the in-memory DAO", op)
}

func (d *Dao) InsertDataset(model.Dataset) error { return notSupported("insert_dataset") }
func (d *Dao) UpdateDataset(uuid.UUID, string) error { return notSupported("update_dataset") }
func (d *Dao) DeleteDataset(uuid.UUID) error { return notSupported("delete_dataset") }
func (d *Dao) InsertUser(model.User) error { return notSupported("insert_user") }
func (d *Dao) UpdateUser(model.User) error { return notSupported("update_user") }
func (d *Dao) InsertChat(model.Chat) error { return notSupported("insert_chat") }
func (d *Dao) DeleteChat(uuid.UUID, int64) error { return notSupported("delete_chat") }
func (d *Dao) InsertMessages(uuid.UUID, int64, []model.Message) error {
	return notSupported("insert_messages")
}
func (d *Dao) CombineChats(uuid.UUID, int64, int64) error { return notSupported("combine_chats") }
func (d *Dao) Backup() error                              { return notSupported("backup") }

func cloneSlice(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}
