package model

// ContentKind discriminates a Content variant. Values mirror the persisted
// message_content.element_type strings exactly.
type ContentKind string

const (
	ContentSticker       ContentKind = "sticker"
	ContentPhoto         ContentKind = "photo"
	ContentVoiceMessage  ContentKind = "voice_message"
	ContentAudio         ContentKind = "audio"
	ContentVideoMessage  ContentKind = "video_message"
	ContentVideo         ContentKind = "video"
	ContentFile          ContentKind = "file"
	ContentLocation      ContentKind = "location"
	ContentPoll          ContentKind = "poll"
	ContentSharedContact ContentKind = "shared_contact"
)

// Content is the media-bearing payload of a regular message. It is a flat,
// wide struct mirroring the message_content table: only the fields relevant
// to Kind are populated, the rest stay nil/zero.
type Content struct {
	Kind ContentKind

	// Path is relative to the dataset root. Sticker, Photo, VoiceMessage,
	// Audio, VideoMessage, Video, File, SharedContact (vcard) use it.
	Path *string
	// ThumbnailPath derives from Path's basename for passthrough subdirs.
	// Sticker, Audio, VideoMessage, Video, File use it.
	ThumbnailPath *string

	Width  *int32
	Height *int32

	MimeType    *string
	DurationSec *int32

	Title     *string // Audio, Video
	Performer *string // Audio, Video
	Emoji     *string // Sticker

	Address *string // Location
	LatStr  *string // Location
	LonStr  *string // Location

	PollQuestion *string // Poll

	FirstName   *string // SharedContact
	LastName    *string // SharedContact
	PhoneNumber *string // SharedContact

	// IsOneTime marks view-once Photo/VideoMessage content.
	IsOneTime bool
}

// PathFields returns every non-nil path-bearing field on the content, used
// by the dataset-root file store and practical equality.
func (c *Content) PathFields() []*string {
	fields := []*string{c.Path, c.ThumbnailPath}
	if c.Kind == ContentSharedContact {
		// vcard reuses Path; nothing extra to add.
	}
	out := make([]*string, 0, len(fields))
	for _, f := range fields {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}
