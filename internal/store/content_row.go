package store

import (
	"database/sql"

	"github.com/archivekeep/chathist/internal/model"
)

// contentRow mirrors message_content's columns. It is shared between
// Regular.Content (element_type is a ContentKind) and Service payloads
// (element_type is a ServiceKind, reusing the same path/media columns for a
// service's Photo and its other scalar fields).
type contentRow struct {
	elementType   string
	path          sql.NullString
	thumbnailPath sql.NullString
	width         sql.NullInt64
	height        sql.NullInt64
	mimeType      sql.NullString
	durationSec   sql.NullInt64
	title         sql.NullString
	performer     sql.NullString
	emoji         sql.NullString
	address       sql.NullString
	lat           sql.NullString
	lon           sql.NullString
	pollQuestion  sql.NullString
	firstName     sql.NullString
	lastName      sql.NullString
	phoneNumber   sql.NullString
	members       sql.NullString
	discardReason sql.NullString
	pinnedMessageID sql.NullInt64
	isBlocked     sql.NullInt64
	isOneTime     sql.NullInt64
}

func contentRowFromContent(c *model.Content) contentRow {
	return contentRow{
		elementType:  string(c.Kind),
		path:         ptrToNullable(c.Path),
		thumbnailPath: ptrToNullable(c.ThumbnailPath),
		width:        nullableInt32(c.Width),
		height:       nullableInt32(c.Height),
		mimeType:     ptrToNullable(c.MimeType),
		durationSec:  nullableInt32(c.DurationSec),
		title:        ptrToNullable(c.Title),
		performer:    ptrToNullable(c.Performer),
		emoji:        ptrToNullable(c.Emoji),
		address:      ptrToNullable(c.Address),
		lat:          ptrToNullable(c.LatStr),
		lon:          ptrToNullable(c.LonStr),
		pollQuestion: ptrToNullable(c.PollQuestion),
		firstName:    ptrToNullable(c.FirstName),
		lastName:     ptrToNullable(c.LastName),
		phoneNumber:  ptrToNullable(c.PhoneNumber),
		isOneTime:    nullableBoolInt(c.IsOneTime),
	}
}

func (cr contentRow) toContent() *model.Content {
	c := &model.Content{
		Kind:          model.ContentKind(cr.elementType),
		Path:          nullableToPtr(cr.path),
		ThumbnailPath: nullableToPtr(cr.thumbnailPath),
		MimeType:      nullableToPtr(cr.mimeType),
		Title:         nullableToPtr(cr.title),
		Performer:     nullableToPtr(cr.performer),
		Emoji:         nullableToPtr(cr.emoji),
		Address:       nullableToPtr(cr.address),
		LatStr:        nullableToPtr(cr.lat),
		LonStr:        nullableToPtr(cr.lon),
		PollQuestion:  nullableToPtr(cr.pollQuestion),
		FirstName:     nullableToPtr(cr.firstName),
		LastName:      nullableToPtr(cr.lastName),
		PhoneNumber:   nullableToPtr(cr.phoneNumber),
	}
	if cr.width.Valid {
		v := int32(cr.width.Int64)
		c.Width = &v
	}
	if cr.height.Valid {
		v := int32(cr.height.Int64)
		c.Height = &v
	}
	if cr.durationSec.Valid {
		v := int32(cr.durationSec.Int64)
		c.DurationSec = &v
	}
	if cr.isOneTime.Valid {
		c.IsOneTime = cr.isOneTime.Int64 != 0
	}
	return c
}

func contentRowFromService(s *model.Service) contentRow {
	cr := contentRow{
		elementType:     string(s.Kind),
		durationSec:     nullableInt32(s.DurationSec),
		discardReason:   ptrToNullable(s.DiscardReason),
		pinnedMessageID: nullableInt64(s.PinnedMessageID),
		isBlocked:       sql.NullInt64{Int64: int64(boolToInt(s.IsBlocked)), Valid: true},
		title:           ptrToNullable(s.Title),
	}
	if s.Kind.HasMembers() && len(s.Members) > 0 {
		cr.members = sql.NullString{String: encodeMembers(s.Members), Valid: true}
	}
	return cr
}

func (cr contentRow) toService() (kind model.ServiceKind, duration *int32, discardReason *string, photo *model.Content, pinnedMessageID *int64, isBlocked bool, title *string, members []string) {
	kind = model.ServiceKind(cr.elementType)
	if cr.durationSec.Valid {
		v := int32(cr.durationSec.Int64)
		duration = &v
	}
	discardReason = nullableToPtr(cr.discardReason)
	if cr.path.Valid || cr.thumbnailPath.Valid {
		photo = cr.toContent()
		photo.Kind = model.ContentPhoto
	}
	if cr.pinnedMessageID.Valid {
		v := cr.pinnedMessageID.Int64
		pinnedMessageID = &v
	}
	isBlocked = cr.isBlocked.Valid && cr.isBlocked.Int64 != 0
	title = nullableToPtr(cr.title)
	if cr.members.Valid {
		members = decodeMembers(cr.members.String)
	}
	return
}

func nullableBoolInt(b bool) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(boolToInt(b)), Valid: true}
}

// textElementRow mirrors message_text_element's columns.
type textElementRow struct {
	elementType string
	text        sql.NullString
	href        sql.NullString
	hidden      sql.NullBool
	language    sql.NullString
}

func (tr textElementRow) toModel() model.RichTextElement {
	e := model.RichTextElement{
		Kind:     model.RTEKind(tr.elementType),
		Text:     tr.text.String,
		Href:     nullableToPtr(tr.href),
		Language: nullableToPtr(tr.language),
	}
	if tr.hidden.Valid {
		e.Hidden = tr.hidden.Bool
	}
	e.SearchableString = model.NormalizeSearchableString(e.Text)
	return e
}
