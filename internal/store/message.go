package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/filestore"
	"github.com/archivekeep/chathist/internal/model"
)

const messageCoreColumns = `internal_id, chat_id, source_id, type, subtype, time_sent, time_edited, is_deleted, from_id, forward_from_name, reply_to_message_id, searchable_string`

// SetAttachmentsRoot records the dataset-root file store directory this
// Store's is_loaded queries should resolve relative paths against.
func (s *Store) SetAttachmentsRoot(root string) {
	s.attachmentsRoot = root
}

func (s *Store) scanMessageCore(rows *sql.Rows, dsUUID uuid.UUID) ([]model.Message, error) {
	var out []model.Message
	for rows.Next() {
		var m model.Message
		var sourceID sql.NullInt64
		var typ, subtype sql.NullString
		var timeEdited sql.NullInt64
		var isDeleted int
		var forwardFromName sql.NullString
		var replyTo sql.NullInt64
		if err := rows.Scan(&m.InternalID, &m.ChatID, &sourceID, &typ, &subtype,
			&m.Timestamp, &timeEdited, &isDeleted, &m.FromID, &forwardFromName, &replyTo, &m.SearchableString); err != nil {
			return nil, apperr.Wrap(apperr.IO, err, "scan message row")
		}
		m.DatasetUUID = dsUUID
		if sourceID.Valid {
			v := sourceID.Int64
			m.SourceID = &v
		}

		switch typ.String {
		case "regular":
			r := &model.Regular{IsDeleted: isDeleted != 0, ForwardFromName: nullableToPtr(forwardFromName)}
			if timeEdited.Valid {
				v := timeEdited.Int64
				r.EditTimestamp = &v
			}
			if replyTo.Valid {
				v := replyTo.Int64
				r.ReplyToMessageID = &v
			}
			m.Typed = r
		case "service":
			m.Typed = &model.Service{Kind: model.ServiceKind(subtype.String)}
		default:
			return nil, apperr.New(apperr.Invariant, "message %d has unknown type %q", m.InternalID, typ.String)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// hydrate fills in Text and the Content/Service payload of each message,
// batching content and text-element lookups across all given messages.
func (s *Store) hydrate(messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]int64, len(messages))
	byID := make(map[int64]int, len(messages))
	for i, m := range messages {
		ids[i] = m.InternalID
		byID[m.InternalID] = i
	}

	contentRows := make(map[int64]contentRow)
	err := queryInChunks(s.db, ids, nil, `
		SELECT message_internal_id, element_type, path, thumbnail_path, width, height, mime_type,
		       duration_sec, title, performer, emoji, address, lat, lon, poll_question,
		       first_name, last_name, phone_number, members, discard_reason, pinned_message_id,
		       is_blocked, is_one_time
		FROM message_content WHERE message_internal_id IN (%s)`, func(rows *sql.Rows) error {
		var msgID int64
		var cr contentRow
		if err := rows.Scan(&msgID, &cr.elementType, &cr.path, &cr.thumbnailPath, &cr.width, &cr.height, &cr.mimeType,
			&cr.durationSec, &cr.title, &cr.performer, &cr.emoji, &cr.address, &cr.lat, &cr.lon, &cr.pollQuestion,
			&cr.firstName, &cr.lastName, &cr.phoneNumber, &cr.members, &cr.discardReason, &cr.pinnedMessageID,
			&cr.isBlocked, &cr.isOneTime); err != nil {
			return err
		}
		contentRows[msgID] = cr
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.IO, err, "batch-load message content")
	}

	textRows := make(map[int64][]textElementRow)
	err = queryInChunks(s.db, ids, nil, `
		SELECT message_internal_id, element_type, text, href, hidden, language
		FROM message_text_element WHERE message_internal_id IN (%s) ORDER BY message_internal_id, id`, func(rows *sql.Rows) error {
		var msgID int64
		var tr textElementRow
		if err := rows.Scan(&msgID, &tr.elementType, &tr.text, &tr.href, &tr.hidden, &tr.language); err != nil {
			return err
		}
		textRows[msgID] = append(textRows[msgID], tr)
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.IO, err, "batch-load message text elements")
	}

	for msgID, trs := range textRows {
		idx, ok := byID[msgID]
		if !ok {
			continue
		}
		elems := make([]model.RichTextElement, 0, len(trs))
		for _, tr := range trs {
			elems = append(elems, tr.toModel())
		}
		messages[idx].Text = elems
	}

	for msgID, cr := range contentRows {
		idx, ok := byID[msgID]
		if !ok {
			continue
		}
		switch t := messages[idx].Typed.(type) {
		case *model.Regular:
			c := cr.toContent()
			t.Content = c
		case *model.Service:
			t.Kind, t.DurationSec, t.DiscardReason, t.Photo, t.PinnedMessageID, t.IsBlocked, t.Title, t.Members = cr.toService()
		}
	}
	return nil
}

func (s *Store) messagesByQuery(dsUUID uuid.UUID, query string, args ...interface{}) ([]model.Message, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, err, "query messages")
	}
	defer rows.Close()
	messages, err := s.scanMessageCore(rows, dsUUID)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// First returns the first n messages of chat, ascending.
func (s *Store) First(dsUUID uuid.UUID, chatID int64, n int) ([]model.Message, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	return s.messagesByQuery(dsUUID, `SELECT `+messageCoreColumns+` FROM message
		WHERE ds_uuid = ? AND chat_id = ? ORDER BY internal_id ASC LIMIT ?`, raw, chatID, n)
}

// Last returns the last n messages of chat, ascending.
func (s *Store) Last(dsUUID uuid.UUID, chatID int64, n int) ([]model.Message, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	msgs, err := s.messagesByQuery(dsUUID, `SELECT `+messageCoreColumns+` FROM message
		WHERE ds_uuid = ? AND chat_id = ? ORDER BY internal_id DESC LIMIT ?`, raw, chatID, n)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// Scroll returns up to n messages starting at offset, ascending.
func (s *Store) Scroll(dsUUID uuid.UUID, chatID int64, offset, n int) ([]model.Message, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	return s.messagesByQuery(dsUUID, `SELECT `+messageCoreColumns+` FROM message
		WHERE ds_uuid = ? AND chat_id = ? ORDER BY internal_id ASC LIMIT ? OFFSET ?`, raw, chatID, n, offset)
}

// Before returns up to n messages strictly before internalID, ascending.
func (s *Store) Before(dsUUID uuid.UUID, chatID, internalID int64, n int) ([]model.Message, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	msgs, err := s.messagesByQuery(dsUUID, `SELECT `+messageCoreColumns+` FROM message
		WHERE ds_uuid = ? AND chat_id = ? AND internal_id < ? ORDER BY internal_id DESC LIMIT ?`, raw, chatID, internalID, n)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// After returns up to n messages strictly after internalID, ascending.
func (s *Store) After(dsUUID uuid.UUID, chatID, internalID int64, n int) ([]model.Message, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	return s.messagesByQuery(dsUUID, `SELECT `+messageCoreColumns+` FROM message
		WHERE ds_uuid = ? AND chat_id = ? AND internal_id > ? ORDER BY internal_id ASC LIMIT ?`, raw, chatID, internalID, n)
}

// Slice returns messages with internal_id in [id1, id2], inclusive both
// ends. Returns an empty slice if id1 > id2.
func (s *Store) Slice(dsUUID uuid.UUID, chatID, id1, id2 int64) ([]model.Message, error) {
	if id1 > id2 {
		return nil, nil
	}
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	return s.messagesByQuery(dsUUID, `SELECT `+messageCoreColumns+` FROM message
		WHERE ds_uuid = ? AND chat_id = ? AND internal_id >= ? AND internal_id <= ? ORDER BY internal_id ASC`,
		raw, chatID, id1, id2)
}

// SliceLen returns the count of messages with internal_id in [id1, id2].
func (s *Store) SliceLen(dsUUID uuid.UUID, chatID, id1, id2 int64) (int, error) {
	if id1 > id2 {
		return 0, nil
	}
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return 0, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	var n int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM message
		WHERE ds_uuid = ? AND chat_id = ? AND internal_id >= ? AND internal_id <= ?`, raw, chatID, id1, id2).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.IO, err, "count message slice")
	}
	return n, nil
}

// AbbreviatedSlice returns a display-friendly rendering of [id1, id2]: if the
// total count is at most combinedLimit, left holds the full slice and
// betweenCount is 0 with right empty; otherwise left and right each hold up
// to abbreviatedLimit messages from their respective end and betweenCount is
// the number of messages omitted between them.
func (s *Store) AbbreviatedSlice(dsUUID uuid.UUID, chatID, id1, id2 int64, combinedLimit, abbreviatedLimit int) (left, right []model.Message, betweenCount int, err error) {
	total, err := s.SliceLen(dsUUID, chatID, id1, id2)
	if err != nil {
		return nil, nil, 0, err
	}
	if total <= combinedLimit {
		all, err := s.Slice(dsUUID, chatID, id1, id2)
		if err != nil {
			return nil, nil, 0, err
		}
		return all, nil, 0, nil
	}

	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, nil, 0, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	left, err = s.messagesByQuery(dsUUID, `SELECT `+messageCoreColumns+` FROM message
		WHERE ds_uuid = ? AND chat_id = ? AND internal_id >= ? AND internal_id <= ?
		ORDER BY internal_id ASC LIMIT ?`, raw, chatID, id1, id2, abbreviatedLimit)
	if err != nil {
		return nil, nil, 0, err
	}
	right, err = s.messagesByQuery(dsUUID, `SELECT `+messageCoreColumns+` FROM message
		WHERE ds_uuid = ? AND chat_id = ? AND internal_id >= ? AND internal_id <= ?
		ORDER BY internal_id DESC LIMIT ?`, raw, chatID, id1, id2, abbreviatedLimit)
	if err != nil {
		return nil, nil, 0, err
	}
	reverse(right)
	betweenCount = total - len(left) - len(right)
	if betweenCount < 0 {
		betweenCount = 0
	}
	return left, right, betweenCount, nil
}

// MessageOption returns the message with the given source id in chat, or nil
// if none exists.
func (s *Store) MessageOption(dsUUID uuid.UUID, chatID, sourceID int64) (*model.Message, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	msgs, err := s.messagesByQuery(dsUUID, `SELECT `+messageCoreColumns+` FROM message
		WHERE ds_uuid = ? AND chat_id = ? AND source_id = ? LIMIT 1`, raw, chatID, sourceID)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

// MessageOptionByInternalID returns the message with the given internal id
// in chat, or nil if none exists.
func (s *Store) MessageOptionByInternalID(dsUUID uuid.UUID, chatID, internalID int64) (*model.Message, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	msgs, err := s.messagesByQuery(dsUUID, `SELECT `+messageCoreColumns+` FROM message
		WHERE ds_uuid = ? AND chat_id = ? AND internal_id = ? LIMIT 1`, raw, chatID, internalID)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

// IsLoaded reports whether relPath resolves to a regular file under this
// store's configured attachments root.
func (s *Store) IsLoaded(relPath string) bool {
	if s.attachmentsRoot == "" {
		return false
	}
	return filestore.FileExists(s.attachmentsRoot, relPath)
}

func reverse(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

const insertBatchSize = 5000

// InsertMessages inserts batch into chat in fixed-size transactions,
// resolving any attachment paths through the dataset-root file store rooted
// at srcRoot/dstRoot. Returns the assigned internal ids in insertion order.
func (s *Store) InsertMessages(dsUUID uuid.UUID, chatID int64, batch []model.Message, srcRoot, dstRoot string) ([]int64, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}

	var assigned []int64
	for start := 0; start < len(batch); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]
		ids, err := s.insertMessageChunk(raw, chatID, chunk, srcRoot, dstRoot)
		if err != nil {
			return assigned, err
		}
		assigned = append(assigned, ids...)
	}
	return assigned, nil
}

func (s *Store) insertMessageChunk(rawDS []byte, chatID int64, chunk []model.Message, srcRoot, dstRoot string) ([]int64, error) {
	var ids []int64
	err := s.withTx(func(tx *sql.Tx) error {
		firstID := int64(-1)
		for _, m := range chunk {
			typ, subtype := typeAndSubtype(m.Typed)
			var timeEdited sql.NullInt64
			var isDeleted int
			var forwardFromName sql.NullString
			var replyTo sql.NullInt64
			if r, ok := m.Typed.(*model.Regular); ok {
				if r.EditTimestamp != nil {
					timeEdited = sql.NullInt64{Int64: *r.EditTimestamp, Valid: true}
				}
				isDeleted = boolToInt(r.IsDeleted)
				forwardFromName = ptrToNullable(r.ForwardFromName)
				if r.ReplyToMessageID != nil {
					replyTo = sql.NullInt64{Int64: *r.ReplyToMessageID, Valid: true}
				}
			}

			res, err := tx.Exec(`
				INSERT INTO message (ds_uuid, chat_id, source_id, type, subtype, time_sent, time_edited, is_deleted, from_id, forward_from_name, reply_to_message_id, searchable_string)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rawDS, chatID, nullableInt64(m.SourceID), typ, subtype, m.Timestamp, timeEdited, isDeleted, m.FromID, forwardFromName, replyTo, m.SearchableString)
			if err != nil {
				return apperr.Wrap(apperr.IO, err, "insert message row")
			}
			id, err := res.LastInsertId()
			if err != nil {
				return apperr.Wrap(apperr.IO, err, "read assigned internal_id")
			}
			ids = append(ids, id)
			if firstID < 0 {
				firstID = id
			}

			for _, e := range m.Text {
				if _, err := tx.Exec(`
					INSERT INTO message_text_element (message_internal_id, element_type, text, href, hidden, language)
					VALUES (?, ?, ?, ?, ?, ?)`,
					id, string(e.Kind), e.Text, ptrToNullable(e.Href), nullableBool(e.Href != nil, e.Hidden), ptrToNullable(e.Language)); err != nil {
					return apperr.Wrap(apperr.IO, err, "insert text element for message %d", id)
				}
			}

			if err := s.insertContentRowTx(tx, id, m, srcRoot, dstRoot, chatID); err != nil {
				return err
			}
		}
		return nil
	})
	return ids, err
}

func (s *Store) insertContentRowTx(tx *sql.Tx, internalID int64, m model.Message, srcRoot, dstRoot string, chatID int64) error {
	var cr *contentRow
	switch t := m.Typed.(type) {
	case *model.Regular:
		if t.Content != nil {
			c := *t.Content
			if err := copyContentPaths(&c, chatID, srcRoot, dstRoot); err != nil {
				return err
			}
			r := contentRowFromContent(&c)
			cr = &r
		}
	case *model.Service:
		r := contentRowFromService(t)
		if t.Photo != nil {
			photo := *t.Photo
			if err := copyContentPaths(&photo, chatID, srcRoot, dstRoot); err != nil {
				return err
			}
			r.path = ptrToNullable(photo.Path)
			r.thumbnailPath = ptrToNullable(photo.ThumbnailPath)
			r.width = nullableInt32(photo.Width)
			r.height = nullableInt32(photo.Height)
			r.mimeType = ptrToNullable(photo.MimeType)
		}
		cr = &r
	}
	if cr == nil {
		return nil
	}
	_, err := tx.Exec(`
		INSERT INTO message_content (message_internal_id, element_type, path, thumbnail_path, width, height, mime_type,
			duration_sec, title, performer, emoji, address, lat, lon, poll_question,
			first_name, last_name, phone_number, members, discard_reason, pinned_message_id, is_blocked, is_one_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		internalID, cr.elementType, cr.path, cr.thumbnailPath, cr.width, cr.height, cr.mimeType,
		cr.durationSec, cr.title, cr.performer, cr.emoji, cr.address, cr.lat, cr.lon, cr.pollQuestion,
		cr.firstName, cr.lastName, cr.phoneNumber, cr.members, cr.discardReason, cr.pinnedMessageID, cr.isBlocked, cr.isOneTime)
	if err != nil {
		return apperr.Wrap(apperr.IO, err, "insert message_content for message %d", internalID)
	}
	return nil
}

// copyContentPaths rewrites c's path/thumbnail_path to their destination
// relative paths, copying bytes through the dataset-root file store. A
// missing source file results in the path being cleared, matching
// CopyFile's "no path" contract.
func copyContentPaths(c *model.Content, chatID int64, srcRoot, dstRoot string) error {
	if srcRoot == "" || dstRoot == "" {
		return nil
	}
	subdir := contentSubdir(c.Kind)
	if c.Path != nil && *c.Path != "" {
		rel, err := filestore.CopyFile(filestore.CopyRequest{
			SrcRoot: srcRoot, DstRoot: dstRoot, ChatID: chatID, Subdir: subdir, SrcRelPath: *c.Path,
		})
		if err != nil {
			return apperr.Wrap(apperr.IO, err, "copy content attachment")
		}
		if rel == "" {
			c.Path = nil
		} else {
			c.Path = &rel
		}
	}
	if c.ThumbnailPath != nil && *c.ThumbnailPath != "" {
		mainRel := ""
		if c.Path != nil {
			mainRel = *c.Path
		}
		rel, err := filestore.CopyFile(filestore.CopyRequest{
			SrcRoot: srcRoot, DstRoot: dstRoot, ChatID: chatID, Subdir: subdir,
			SrcRelPath: *c.ThumbnailPath, ThumbnailOfRelPath: mainRel,
		})
		if err != nil {
			return apperr.Wrap(apperr.IO, err, "copy content thumbnail")
		}
		if rel == "" {
			c.ThumbnailPath = nil
		} else {
			c.ThumbnailPath = &rel
		}
	}
	return nil
}

func contentSubdir(kind model.ContentKind) filestore.Subdir {
	switch kind {
	case model.ContentPhoto:
		return filestore.SubdirPhotos
	case model.ContentSticker:
		return filestore.SubdirStickers
	case model.ContentVoiceMessage:
		return filestore.SubdirVoiceMessages
	case model.ContentAudio:
		return filestore.SubdirAudios
	case model.ContentVideoMessage:
		return filestore.SubdirVideoMessages
	case model.ContentVideo:
		return filestore.SubdirVideos
	case model.ContentFile:
		return filestore.SubdirFiles
	case model.ContentSharedContact:
		return filestore.SubdirFiles
	default:
		return filestore.SubdirNone
	}
}

func typeAndSubtype(t model.Typed) (typ string, subtype sql.NullString) {
	switch v := t.(type) {
	case *model.Regular:
		return "regular", sql.NullString{}
	case *model.Service:
		return "service", sql.NullString{String: string(v.Kind), Valid: true}
	default:
		return "regular", sql.NullString{}
	}
}

func nullableBool(present bool, b bool) sql.NullBool {
	if !present {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: b, Valid: true}
}

func nullableInt32(p *int32) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
