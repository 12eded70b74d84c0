package model

// ServiceKind discriminates a Service message's subtype. Values mirror the
// persisted message.subtype strings exactly.
type ServiceKind string

const (
	ServicePhoneCall           ServiceKind = "phone_call"
	ServiceSuggestProfilePhoto ServiceKind = "suggest_profile_photo"
	ServicePinMessage          ServiceKind = "pin_message"
	ServiceClearHistory        ServiceKind = "clear_history"
	ServiceBlockUser           ServiceKind = "block_user"
	ServiceStatusTextChanged   ServiceKind = "status_text_changed"
	ServiceNotice              ServiceKind = "notice"
	ServiceGroupCreate         ServiceKind = "group_create"
	ServiceGroupEditTitle      ServiceKind = "group_edit_title"
	ServiceGroupEditPhoto      ServiceKind = "group_edit_photo"
	ServiceGroupDeletePhoto    ServiceKind = "group_delete_photo"
	ServiceGroupInviteMembers  ServiceKind = "group_invite_members"
	ServiceGroupRemoveMembers  ServiceKind = "group_remove_members"
	ServiceGroupMigrateFrom    ServiceKind = "group_migrate_from"
	ServiceGroupMigrateTo      ServiceKind = "group_migrate_to"
	ServiceGroupCall           ServiceKind = "group_call"
	ServiceMessageDeleted      ServiceKind = "message_deleted"
)

// membersKinds lists the subtypes whose Members field is semantically a
// list of participant names, subject to member-set resolution during
// practical equality and to pretty-name fixup during merge.
var membersKinds = map[ServiceKind]bool{
	ServiceGroupCreate:        true,
	ServiceGroupInviteMembers: true,
	ServiceGroupRemoveMembers: true,
	ServiceGroupCall:          true,
}

// HasMembers reports whether this subtype carries a Members name list.
func (k ServiceKind) HasMembers() bool { return membersKinds[k] }

// Service is a service (non-regular) message's typed payload. It is a flat
// struct mirroring message_content's service-relevant columns: only the
// fields relevant to Kind are populated.
type Service struct {
	Kind ServiceKind

	DurationSec   *int32  // PhoneCall
	DiscardReason *string // PhoneCall

	Photo *Content // SuggestProfilePhoto, GroupEditPhoto

	PinnedMessageID *int64 // PinMessage: source id of the pinned message

	IsBlocked bool // BlockUser

	Title *string // GroupCreate, GroupEditTitle, GroupMigrateFrom

	// Members holds participant names for GroupCreate/GroupInviteMembers/
	// GroupRemoveMembers/GroupCall. Encoded ";;;"-joined in storage; nil
	// when the subtype carries no members.
	Members []string
}

func (*Service) isTyped() {}

// Regular is a regular message's typed payload.
type Regular struct {
	EditTimestamp *int64
	IsDeleted     bool
	// ForwardFromName is ignored by practical equality.
	ForwardFromName *string
	// ReplyToMessageID is a source id, may be absent.
	ReplyToMessageID *int64
	Content          *Content
}

func (*Regular) isTyped() {}

// Typed is the sum type over a message's payload: *Regular or *Service.
// Implementations favour exhaustive type switches over further dispatch, per
// the entity model's design intent.
type Typed interface{ isTyped() }
