// Package dao defines the read contract shared by the persistent store
// (internal/store) and the in-memory DAO (internal/memdao), so the diff
// analyzer, merger and bulk-copy logic can consume either without knowing
// which backs a given dataset.
package dao

import (
	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/model"
)

// ReadDAO is the read-only operation set common to every DAO implementation
// (spec.md §4.2/§4.3's *reads* list).
type ReadDAO interface {
	Datasets() ([]model.Dataset, error)
	Users(dsUUID uuid.UUID) ([]model.User, error)
	Chats(dsUUID uuid.UUID) ([]model.Chat, error)
	ChatOption(dsUUID uuid.UUID, chatID int64) (*model.Chat, error)

	First(dsUUID uuid.UUID, chatID int64, n int) ([]model.Message, error)
	Last(dsUUID uuid.UUID, chatID int64, n int) ([]model.Message, error)
	Scroll(dsUUID uuid.UUID, chatID int64, offset, n int) ([]model.Message, error)
	Before(dsUUID uuid.UUID, chatID, internalID int64, n int) ([]model.Message, error)
	After(dsUUID uuid.UUID, chatID, internalID int64, n int) ([]model.Message, error)
	Slice(dsUUID uuid.UUID, chatID, id1, id2 int64) ([]model.Message, error)
	SliceLen(dsUUID uuid.UUID, chatID, id1, id2 int64) (int, error)
	AbbreviatedSlice(dsUUID uuid.UUID, chatID, id1, id2 int64, combinedLimit, abbreviatedLimit int) (left, right []model.Message, betweenCount int, err error)
	MessageOption(dsUUID uuid.UUID, chatID, sourceID int64) (*model.Message, error)
	MessageOptionByInternalID(dsUUID uuid.UUID, chatID, internalID int64) (*model.Message, error)
	IsLoaded(relPath string) bool
}

// ScrollBatchSize is the message-batch size bulk copy streams with, per
// spec.md §4.4. The merger uses its own batch size.
const ScrollBatchSize = 5000
