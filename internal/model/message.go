package model

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Message is fully owned by its chat: deleted along with it. InternalID is
// assigned by the persistent store and monotonically increasing in
// insertion order within a chat; SourceID comes from the origin ecosystem,
// may repeat across chats, and may be absent.
type Message struct {
	InternalID  int64
	DatasetUUID uuid.UUID
	ChatID      int64
	SourceID    *int64
	// Timestamp is unix seconds, local TZ of import.
	Timestamp int64
	FromID    int64
	Text      []RichTextElement
	// SearchableString is a normalised concatenation of Text and selected
	// typed fields; see MakeSearchableString.
	SearchableString string
	Typed            Typed
}

// MakeSearchableString joins the non-empty searchable substrings of text
// with a space, then appends type-specific fields (sticker emoji, file
// performer, location address/title/lat/lon, poll question, shared-contact
// name/phone, and service titles/members), finally trimming the result.
func MakeSearchableString(text []RichTextElement, typed Typed) string {
	var parts []string
	for _, e := range text {
		if e.SearchableString != "" {
			parts = append(parts, e.SearchableString)
		}
	}

	switch t := typed.(type) {
	case *Regular:
		if t.Content != nil {
			parts = append(parts, contentSearchableFields(t.Content)...)
		}
	case *Service:
		parts = append(parts, serviceSearchableFields(t)...)
	}

	joined := strings.Join(parts, " ")
	return NormalizeSearchableString(joined)
}

func contentSearchableFields(c *Content) []string {
	var out []string
	switch c.Kind {
	case ContentSticker:
		if c.Emoji != nil {
			out = append(out, *c.Emoji)
		}
	case ContentAudio, ContentVideo:
		if c.Title != nil {
			out = append(out, *c.Title)
		}
		if c.Performer != nil {
			out = append(out, *c.Performer)
		}
	case ContentLocation:
		if c.Title != nil {
			out = append(out, *c.Title)
		}
		if c.Address != nil {
			out = append(out, *c.Address)
		}
		if c.LatStr != nil {
			out = append(out, *c.LatStr)
		}
		if c.LonStr != nil {
			out = append(out, *c.LonStr)
		}
	case ContentPoll:
		if c.PollQuestion != nil {
			out = append(out, *c.PollQuestion)
		}
	case ContentSharedContact:
		if c.FirstName != nil {
			out = append(out, *c.FirstName)
		}
		if c.LastName != nil {
			out = append(out, *c.LastName)
		}
		if c.PhoneNumber != nil {
			out = append(out, *c.PhoneNumber)
		}
	}
	return out
}

func serviceSearchableFields(s *Service) []string {
	var out []string
	switch s.Kind {
	case ServiceGroupCreate, ServiceGroupEditTitle, ServiceGroupMigrateFrom:
		if s.Title != nil {
			out = append(out, *s.Title)
		}
	}
	if s.Kind.HasMembers() {
		out = append(out, s.Members...)
	}
	return out
}

// LatLonPrecision is the number of fractional digits considered significant
// when comparing Location coordinates (trailing-zero insensitive).
const LatLonPrecision = 8

// ParseCoordinate parses a Location lat/lon string to a fixed-precision
// decimal for comparison, rounding to LatLonPrecision fractional digits.
// Returns ok=false if s is not a valid decimal number.
func ParseCoordinate(s string) (value float64, ok bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	scale := 1.0
	for i := 0; i < LatLonPrecision; i++ {
		scale *= 10
	}
	rounded := float64(int64(v*scale+signOf(v)*0.5)) / scale
	return rounded, true
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
