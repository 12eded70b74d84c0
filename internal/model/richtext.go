package model

import (
	"regexp"
	"strings"
)

// RTEKind discriminates a RichTextElement's variant. Values mirror the
// persisted rich-text element_type strings exactly.
type RTEKind string

const (
	RTEPlain         RTEKind = "plain"
	RTEBold          RTEKind = "bold"
	RTEItalic        RTEKind = "italic"
	RTEUnderline     RTEKind = "underline"
	RTEStrikethrough RTEKind = "strikethrough"
	RTESpoiler       RTEKind = "spoiler"
	RTELink          RTEKind = "link"
	RTEPrefmtInline  RTEKind = "prefmt_inline"
	RTEPrefmtBlock   RTEKind = "prefmt_block"
	RTEBlockquote    RTEKind = "blockquote"
)

// RichTextElement is a single formatted run of text. Only RTELink and
// RTEPrefmtBlock use Href/Hidden/Language; every other kind carries its
// content in Text alone.
type RichTextElement struct {
	Kind RTEKind
	Text string
	// Href is the link target (RTELink only).
	Href *string
	// Hidden marks a link whose href should not be shown verbatim (RTELink only).
	Hidden bool
	// Language is the code block's language hint (RTEPrefmtBlock only).
	Language *string

	// SearchableString is Text normalised for full-text comparison, computed
	// once at construction.
	SearchableString string
}

// NewRichTextElement builds a plain/bold/italic/.../blockquote element,
// computing its searchable string from text.
func NewRichTextElement(kind RTEKind, text string) RichTextElement {
	return RichTextElement{Kind: kind, Text: text, SearchableString: NormalizeSearchableString(text)}
}

// NewLink builds a RTELink element. Its searchable string folds in href:
// when text and href are the same (a bare autolinked URL), href alone is
// normalized; otherwise text and href are joined before normalizing, so a
// link's target remains searchable even when its display text doesn't
// mention it.
func NewLink(text, href string, hidden bool) RichTextElement {
	searchable := href
	if text != href {
		searchable = text + " " + href
	}
	return RichTextElement{
		Kind:             RTELink,
		Text:             text,
		Href:             &href,
		Hidden:           hidden,
		SearchableString: NormalizeSearchableString(searchable),
	}
}

// NewPrefmtBlock builds a RTEPrefmtBlock element.
func NewPrefmtBlock(text string, language *string) RichTextElement {
	return RichTextElement{
		Kind:             RTEPrefmtBlock,
		Text:             text,
		Language:         language,
		SearchableString: NormalizeSearchableString(text),
	}
}

// separatorRun matches runs of Unicode separator and invisible-format
// characters, including newlines, that normalizeSearchableString collapses
// to a single space.
var separatorRun = regexp.MustCompile(`[\p{Z}\p{Cf}\n]+`)

// NormalizeSearchableString collapses runs of separator/format characters to
// a single space and trims the result, matching how every searchable
// substring in the entity model is derived from its source text.
func NormalizeSearchableString(s string) string {
	return strings.TrimSpace(separatorRun.ReplaceAllString(s, " "))
}
