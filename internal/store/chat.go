package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/filestore"
	"github.com/archivekeep/chathist/internal/model"
)

// Chats returns every chat in the dataset, sorted by descending last-message
// timestamp (chats with no messages sort last, in id order).
func (s *Store) Chats(dsUUID uuid.UUID) ([]model.Chat, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	rows, err := s.db.Query(`
		SELECT c.id, c.name, c.source_type, c.type, c.img_path, c.msg_count, c.main_chat_id,
		       COALESCE(MAX(m.time_sent), -1) AS last_ts
		FROM chat c
		LEFT JOIN message m ON m.ds_uuid = c.ds_uuid AND m.chat_id = c.id
		WHERE c.ds_uuid = ?
		GROUP BY c.id
		ORDER BY last_ts DESC, c.id ASC`, raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, err, "query chats")
	}
	defer rows.Close()

	var chats []model.Chat
	for rows.Next() {
		c := model.Chat{DatasetUUID: dsUUID}
		var name, imgPath sql.NullString
		var mainChatID sql.NullInt64
		var lastTS int64
		var typeStr string
		if err := rows.Scan(&c.ID, &name, &c.SourceType, &typeStr, &imgPath, &c.MsgCount, &mainChatID, &lastTS); err != nil {
			return nil, apperr.Wrap(apperr.IO, err, "scan chat row")
		}
		c.Type = model.ChatType(typeStr)
		c.Name = nullableToPtr(name)
		c.ImgPath = nullableToPtr(imgPath)
		if mainChatID.Valid {
			v := mainChatID.Int64
			c.MainChatID = &v
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.IO, err, "iterate chats")
	}

	for i := range chats {
		members, err := s.chatMembers(dsUUID, chats[i].ID)
		if err != nil {
			return nil, err
		}
		chats[i].MemberIDs = members
	}
	return chats, nil
}

// ChatOption returns a single chat, or nil if it does not exist.
func (s *Store) ChatOption(dsUUID uuid.UUID, chatID int64) (*model.Chat, error) {
	chats, err := s.Chats(dsUUID)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		if chats[i].ID == chatID {
			return &chats[i], nil
		}
	}
	return nil, nil
}

func (s *Store) chatMembers(dsUUID uuid.UUID, chatID int64) ([]int64, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	rows, err := s.db.Query(`
		SELECT user_id FROM chat_member WHERE ds_uuid = ? AND chat_id = ? ORDER BY "order" ASC`, raw, chatID)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, err, "query chat members")
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.IO, err, "scan chat member row")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertChat inserts a chat and its ordered member list. If c.ImgPath is set
// and srcRoot/dstRoot are non-empty, the chat image is copied through the
// dataset-root file store and c.ImgPath is rewritten to the destination
// relative path before insertion.
func (s *Store) InsertChat(c model.Chat, srcRoot, dstRoot string) error {
	if c.ImgPath != nil && *c.ImgPath != "" && srcRoot != "" && dstRoot != "" {
		rel, err := filestore.CopyFile(filestore.CopyRequest{
			SrcRoot: srcRoot, DstRoot: dstRoot, ChatID: c.ID,
			Subdir: filestore.SubdirNone, SrcRelPath: *c.ImgPath,
		})
		if err != nil {
			return apperr.Wrap(apperr.IO, err, "copy chat image for chat %d", c.ID)
		}
		if rel == "" {
			c.ImgPath = nil
		} else {
			c.ImgPath = &rel
		}
	}

	raw, err := c.DatasetUUID.MarshalBinary()
	if err != nil {
		return apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}

	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO chat (ds_uuid, id, name, source_type, type, img_path, msg_count, main_chat_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			raw, c.ID, ptrToNullable(c.Name), c.SourceType, string(c.Type), ptrToNullable(c.ImgPath), c.MsgCount, nullableInt64(c.MainChatID))
		if err != nil {
			if isUniqueConstraintErr(err) {
				return apperr.Wrap(apperr.Conflict, err, "chat %d already exists in dataset %s", c.ID, c.DatasetUUID)
			}
			return apperr.Wrap(apperr.IO, err, "insert chat %d", c.ID)
		}
		for order, userID := range c.MemberIDs {
			if _, err := tx.Exec(`INSERT INTO chat_member (ds_uuid, chat_id, user_id, "order") VALUES (?, ?, ?, ?)`,
				raw, c.ID, userID, order); err != nil {
				return apperr.Wrap(apperr.IO, err, "insert chat member %d of chat %d", userID, c.ID)
			}
		}
		return nil
	})
}

// UpdateChat rewrites a chat's row, possibly under a new id: chat_member and
// message rows referencing the old id are moved to the new one, and the
// chat's attachment tree is renamed from chat_<old>/ to chat_<new>/,
// preserving contents.
func (s *Store) UpdateChat(dsUUID uuid.UUID, oldID int64, c model.Chat, renameDir func(oldID, newID int64) error) error {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}

	err = s.withTx(func(tx *sql.Tx) error {
		if c.ID != oldID {
			if _, err := tx.Exec(`UPDATE chat_member SET chat_id = ? WHERE ds_uuid = ? AND chat_id = ?`, c.ID, raw, oldID); err != nil {
				return apperr.Wrap(apperr.IO, err, "move chat_member rows from %d to %d", oldID, c.ID)
			}
			if _, err := tx.Exec(`UPDATE message SET chat_id = ? WHERE ds_uuid = ? AND chat_id = ?`, c.ID, raw, oldID); err != nil {
				return apperr.Wrap(apperr.IO, err, "move message rows from %d to %d", oldID, c.ID)
			}
		}
		res, err := tx.Exec(`
			UPDATE chat SET id=?, name=?, source_type=?, type=?, img_path=?, msg_count=?, main_chat_id=?
			WHERE ds_uuid=? AND id=?`,
			c.ID, ptrToNullable(c.Name), c.SourceType, string(c.Type), ptrToNullable(c.ImgPath), c.MsgCount, nullableInt64(c.MainChatID),
			raw, oldID)
		if err != nil {
			return apperr.Wrap(apperr.IO, err, "update chat %d", oldID)
		}
		return requireAffected(res, apperr.NotFound, "chat %d not found", oldID)
	})
	if err != nil {
		return err
	}
	if c.ID != oldID && renameDir != nil {
		if err := renameDir(oldID, c.ID); err != nil {
			return apperr.Wrap(apperr.IO, err, "rename attachment directory for chat %d to %d", oldID, c.ID)
		}
	}
	return nil
}

// DeleteChat deletes a chat and its messages (cascading via foreign keys),
// moves its attachments to backup, then deletes any user in the dataset no
// longer a member of any remaining chat.
func (s *Store) DeleteChat(dsUUID uuid.UUID, chatID int64, moveToBackup func(chatID int64) error) error {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}

	err = s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM chat WHERE ds_uuid = ? AND id = ?`, raw, chatID)
		if err != nil {
			return apperr.Wrap(apperr.IO, err, "delete chat %d", chatID)
		}
		if err := requireAffected(res, apperr.NotFound, "chat %d not found", chatID); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			DELETE FROM user WHERE ds_uuid = ? AND id NOT IN (
				SELECT DISTINCT user_id FROM chat_member WHERE ds_uuid = ?
			)`, raw, raw); err != nil {
			return apperr.Wrap(apperr.IO, err, "delete orphaned users after deleting chat %d", chatID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if moveToBackup != nil {
		if err := moveToBackup(chatID); err != nil {
			return apperr.Wrap(apperr.IO, err, "move attachments of chat %d to backup", chatID)
		}
	}
	return nil
}

// CombineChats folds slave into master: slave.main_chat_id := master.id, and
// the same is applied to any chat that already pointed at slave as its
// master. main_chat_id is never cleared when a master chat is later deleted
// (see the open question on main_chat_id in SPEC_FULL.md).
func (s *Store) CombineChats(dsUUID uuid.UUID, masterID, slaveID int64) error {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE chat SET main_chat_id = ? WHERE ds_uuid = ? AND id = ?`, masterID, raw, slaveID)
		if err != nil {
			return apperr.Wrap(apperr.IO, err, "set main_chat_id on chat %d", slaveID)
		}
		if err := requireAffected(res, apperr.NotFound, "chat %d not found", slaveID); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE chat SET main_chat_id = ? WHERE ds_uuid = ? AND main_chat_id = ?`, masterID, raw, slaveID); err != nil {
			return apperr.Wrap(apperr.IO, err, "repoint chats that had chat %d as master", slaveID)
		}
		return nil
	})
}

func nullableInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
