// Package bulkcopy implements copy_all_from (SPEC_FULL.md §4.4): a wholesale
// copy of every dataset, user, chat and message from a source DAO (normally
// an importer's in-memory dataset) into a persistent store, followed by a
// dataset equivalence check against the freshly written copy.
package bulkcopy

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/dao"
	"github.com/archivekeep/chathist/internal/equality"
	"github.com/archivekeep/chathist/internal/model"
	"github.com/archivekeep/chathist/internal/store"
)

// DefaultWorkers bounds the per-chat copy fan-out when the caller does not
// pick a specific worker count.
const DefaultWorkers = 4

// Report summarizes one copy_all_from run, for callers that want to log or
// display progress rather than just check the error.
type Report struct {
	Datasets int
	Chats    int
	Messages int
}

// CopyAllFrom copies every dataset reachable from src into dst, then runs
// the post-copy equivalence check (SPEC_FULL.md §4.4 step 2). srcRoot is the
// file store root backing src's attachments; dstRoot is dst's own storage
// directory, under which each dataset gets its own attachments subtree.
//
// Chats within a dataset are copied concurrently, bounded by workers (a
// value below 1 means DefaultWorkers); datasets themselves are copied one at a time since they share
// the destination store's single write connection.
func CopyAllFrom(dst *store.Store, src dao.ReadDAO, srcRoot, dstRoot string, workers int) (*Report, error) {
	if workers < 1 {
		workers = DefaultWorkers
	}

	datasets, err := src.Datasets()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, ds := range datasets {
		n, err := copyDataset(dst, src, ds, srcRoot, dstRoot, workers)
		if err != nil {
			return nil, err
		}
		report.Datasets++
		report.Chats += len(n)
		for _, c := range n {
			report.Messages += c
		}
	}

	if err := checkEquivalence(dst, src, datasets, srcRoot, dstRoot); err != nil {
		return nil, err
	}
	return report, nil
}

// copyDataset inserts one dataset, its users, and fans its chats out across
// up to `workers` concurrent copies. Returns the message count copied per
// chat, in no particular order.
func copyDataset(dst *store.Store, src dao.ReadDAO, ds model.Dataset, srcRoot, dstRoot string, workers int) ([]int, error) {
	if err := dst.InsertDataset(ds); err != nil {
		return nil, err
	}

	users, err := src.Users(ds.UUID)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if err := dst.InsertUser(u); err != nil {
			return nil, err
		}
	}

	chats, err := src.Chats(ds.UUID)
	if err != nil {
		return nil, err
	}

	dsDstRoot := filepath.Join(dstRoot, ds.UUID.String())

	counts := make([]int, len(chats))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, c := range chats {
		g.Go(func() error {
			n, err := copyChat(dst, src, ds.UUID, c, srcRoot, dsDstRoot)
			if err != nil {
				return fmt.Errorf("copy chat %d: %w", c.ID, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

// copyChat inserts one chat (which copies its image through internal/filestore)
// then streams its messages in batches of dao.ScrollBatchSize, copying
// attachments as each batch is inserted. Returns the number of messages copied.
func copyChat(dst *store.Store, src dao.ReadDAO, dsUUID uuid.UUID, chat model.Chat, srcRoot, dstRoot string) (int, error) {
	if err := dst.InsertChat(chat, srcRoot, dstRoot); err != nil {
		return 0, err
	}

	total := 0
	offset := 0
	for {
		batch, err := src.Scroll(dsUUID, chat.ID, offset, dao.ScrollBatchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}
		if _, err := dst.InsertMessages(dsUUID, chat.ID, batch, srcRoot, dstRoot); err != nil {
			return total, err
		}
		total += len(batch)
		offset += len(batch)
		if len(batch) < dao.ScrollBatchSize {
			break
		}
	}

	if err := finalizeChatCount(dst, dsUUID, chat.ID, total); err != nil {
		return total, err
	}
	return total, nil
}

// finalizeChatCount stamps the copied chat's msg_count once all of its
// messages are in, since InsertMessages does not maintain it incrementally.
func finalizeChatCount(dst *store.Store, dsUUID uuid.UUID, chatID int64, count int) error {
	chat, err := dst.ChatOption(dsUUID, chatID)
	if err != nil {
		return err
	}
	if chat == nil {
		return apperr.New(apperr.NotFound, "chat %d not found after copy", chatID)
	}
	chat.MsgCount = int32(count)
	return dst.UpdateChat(dsUUID, chatID, *chat, func(int64, int64) error { return nil })
}

// checkEquivalence verifies that every chat and message copied into dst is
// practically equal to its source counterpart (SPEC_FULL.md §4.4 step 2,
// §8's round-trip invariant).
func checkEquivalence(dst *store.Store, src dao.ReadDAO, datasets []model.Dataset, srcRoot, dstRoot string) error {
	for _, ds := range datasets {
		dsDstRoot := filepath.Join(dstRoot, ds.UUID.String())

		srcChats, err := src.Chats(ds.UUID)
		if err != nil {
			return err
		}
		dstChats, err := dst.Chats(ds.UUID)
		if err != nil {
			return err
		}
		dstByID := make(map[int64]model.Chat, len(dstChats))
		for _, c := range dstChats {
			dstByID[c.ID] = c
		}

		for _, sc := range srcChats {
			dc, ok := dstByID[sc.ID]
			if !ok {
				return apperr.New(apperr.Invariant, "chat %d missing from copied dataset %s", sc.ID, ds.UUID)
			}

			sResolve, err := nameResolver(src, ds.UUID, sc.ID)
			if err != nil {
				return err
			}
			dResolve, err := nameResolver(dst, ds.UUID, dc.ID)
			if err != nil {
				return err
			}
			sideS := equality.Side{Root: srcRoot, Resolve: sResolve}
			sideD := equality.Side{Root: dsDstRoot, Resolve: dResolve}

			chatsEq, err := equality.ChatsEqual(sc, sideS, dc, sideD)
			if err != nil {
				return err
			}
			if !chatsEq {
				return apperr.New(apperr.Invariant, "chat %d not practically equal after copy", sc.ID)
			}

			if err := checkMessagesEquivalence(src, dst, ds.UUID, sc.ID, sideS, sideD); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkMessagesEquivalence compares src and dst message-by-message in
// ascending scroll order. Destination internal ids come from a store-wide
// autoincrement and so need not equal the source's; insertion order is what
// ties a source message to its copy, not the id.
func checkMessagesEquivalence(src, dst dao.ReadDAO, dsUUID uuid.UUID, chatID int64, sideS, sideD equality.Side) error {
	offset := 0
	for {
		sBatch, err := src.Scroll(dsUUID, chatID, offset, dao.ScrollBatchSize)
		if err != nil {
			return err
		}
		dBatch, err := dst.Scroll(dsUUID, chatID, offset, dao.ScrollBatchSize)
		if err != nil {
			return err
		}
		if len(sBatch) != len(dBatch) {
			return apperr.New(apperr.Invariant, "chat %d: source has %d messages at offset %d, copy has %d", chatID, len(sBatch), offset, len(dBatch))
		}
		if len(sBatch) == 0 {
			return nil
		}
		for i, sm := range sBatch {
			eq, err := equality.MessagesEqual(sm, sideS, dBatch[i], sideD)
			if err != nil {
				return err
			}
			if !eq {
				return apperr.New(apperr.Invariant, "message at offset %d in chat %d not practically equal after copy", offset+i, chatID)
			}
		}
		offset += len(sBatch)
		if len(sBatch) < dao.ScrollBatchSize {
			return nil
		}
	}
}

// nameResolver maps a chat's member ids to their pretty names, for practical
// equality's member-list resolution.
func nameResolver(d dao.ReadDAO, dsUUID uuid.UUID, chatID int64) (equality.NameResolver, error) {
	chat, err := d.ChatOption(dsUUID, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, apperr.New(apperr.NotFound, "chat %d not found in dataset %s", chatID, dsUUID)
	}
	users, err := d.Users(dsUUID)
	if err != nil {
		return nil, err
	}
	members := make(map[int64]bool, len(chat.MemberIDs))
	for _, id := range chat.MemberIDs {
		members[id] = true
	}
	byName := make(map[string]int64)
	for _, u := range users {
		if members[u.ID] {
			byName[u.PrettyName()] = u.ID
		}
	}
	return func(name string) (int64, bool) {
		id, ok := byName[name]
		return id, ok
	}, nil
}
