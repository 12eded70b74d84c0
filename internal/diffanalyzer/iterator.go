package diffanalyzer

import (
	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/dao"
	"github.com/archivekeep/chathist/internal/model"
)

// batchIterator is a peekable, lazily-refilled ascending message stream
// over one chat, fetching batchSize messages at a time via the DAO's
// scrolling reads.
type batchIterator struct {
	d      dao.ReadDAO
	dsUUID uuid.UUID
	chatID int64
	batch  []model.Message
	idx    int
	lastID int64
}

func newBatchIterator(d dao.ReadDAO, dsUUID uuid.UUID, chatID int64) (*batchIterator, error) {
	batch, err := d.First(dsUUID, chatID, batchSize)
	if err != nil {
		return nil, err
	}
	return &batchIterator{d: d, dsUUID: dsUUID, chatID: chatID, batch: batch}, nil
}

// peek returns the next unconsumed message without advancing, or nil if
// the stream is exhausted.
func (it *batchIterator) peek() *model.Message {
	if it.idx < len(it.batch) {
		return &it.batch[it.idx]
	}
	return nil
}

// advance consumes and returns the peeked message, refilling the batch
// from the DAO if it was the last of the current page.
func (it *batchIterator) advance() (*model.Message, error) {
	m := it.peek()
	if m == nil {
		return nil, nil
	}
	it.lastID = m.InternalID
	it.idx++
	if it.idx >= len(it.batch) {
		next, err := it.d.After(it.dsUUID, it.chatID, it.lastID, batchSize)
		if err != nil {
			return nil, err
		}
		it.batch = next
		it.idx = 0
	}
	return m, nil
}
