// Package model defines the canonical chat-history entity model: datasets,
// users, chats, messages, rich text and content. Entities are value records;
// identity is explicit (dataset UUID plus a dataset-scoped integer id).
package model

import (
	"strings"

	"github.com/google/uuid"
)

// Unnamed is the pretty-name fallback when a user carries no name, username
// or phone number.
const Unnamed = "[unnamed]"

// Dataset groups users, chats and messages belonging to one account/export.
// UUIDs are globally unique; a persistent store may hold several datasets.
type Dataset struct {
	UUID uuid.UUID
	// Alias is the human label shown for this dataset (e.g. "Telegram export").
	Alias string
	// SourceType records which importer produced this dataset, if known.
	SourceType string
}

// User is a dataset member. Within a dataset, ID is unique and stable, but
// may be reassigned by UpdateUser, which rewrites every reference.
type User struct {
	DatasetUUID uuid.UUID
	ID          int64
	FirstName   *string
	LastName    *string
	Username    *string
	PhoneNumber *string
	// IsMyself flags the single user in the dataset that is the account owner.
	IsMyself bool
}

// PrettyName resolves a display name in order: first+last name, username,
// phone number, else Unnamed.
func (u *User) PrettyName() string {
	return PrettyNameOf(u.FirstName, u.LastName, u.Username, u.PhoneNumber)
}

// PrettyNameOf resolves a display name from individual fields, in order:
// first+last name, username, phone number, else Unnamed. Exposed so storage
// layers can recompute a name from raw columns without a User value.
func PrettyNameOf(firstName, lastName, username, phone *string) string {
	var full string
	switch {
	case firstName != nil && lastName != nil:
		full = strings.TrimSpace(*firstName + " " + *lastName)
	case firstName != nil:
		full = strings.TrimSpace(*firstName)
	case lastName != nil:
		full = strings.TrimSpace(*lastName)
	}
	if full != "" {
		return full
	}
	if username != nil && *username != "" {
		return *username
	}
	if phone != nil && *phone != "" {
		return *phone
	}
	return Unnamed
}

// ChatType distinguishes one-on-one conversations from groups.
type ChatType string

const (
	ChatPersonal     ChatType = "personal"
	ChatPrivateGroup ChatType = "private_group"
)

// Chat is a conversation belonging to a dataset. MemberIDs is ordered; the
// first element is always the dataset's self user. Personal chats have
// exactly two members.
type Chat struct {
	DatasetUUID uuid.UUID
	ID          int64
	Name        *string
	SourceType  string
	Type        ChatType
	ImgPath     *string
	MemberIDs   []int64
	MsgCount    int32
	// MainChatID, if set, names the chat this one was folded into by
	// combine_chats; it is never cleared automatically when the master
	// chat is deleted (see SPEC_FULL.md / open question on main_chat_id).
	MainChatID *int64
}

// OtherMember returns the non-self member of a Personal chat, or 0, false if
// there isn't exactly one (e.g. the chat is not Personal, or self is absent).
func (c *Chat) OtherMember() (int64, bool) {
	if c.Type != ChatPersonal || len(c.MemberIDs) != 2 {
		return 0, false
	}
	self := c.MemberIDs[0]
	for _, id := range c.MemberIDs {
		if id != self {
			return id, true
		}
	}
	return 0, false
}
