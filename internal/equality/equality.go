// Package equality implements practical equality (SPEC_FULL.md §4.5): a
// three-argument equivalence on messages and content, used by the diff
// analyzer, the merger, and bulk-copy's post-check integration tests.
// "Practical" because it compares content through the filesystem rather
// than by path string, and tolerates fields that two independent imports of
// the same conversation are expected to disagree on.
package equality

import (
	"path/filepath"

	"github.com/archivekeep/chathist/internal/filestore"
	"github.com/archivekeep/chathist/internal/model"
)

// NameResolver maps a member-list name to a user id within one chat's
// member set, as practical equality's members comparison requires
// (SPEC_FULL.md §4.5). It returns ok=false for a name that does not
// resolve to any member, in which case the name is compared textually.
type NameResolver func(name string) (userID int64, ok bool)

// Side bundles the arguments practical equality needs to resolve one
// message/content's path and member fields.
type Side struct {
	Root    string
	Resolve NameResolver
}

// resolvePath joins a dataset-root-relative path, or returns "" for nil/empty.
func resolvePath(root string, rel *string) string {
	if rel == nil || *rel == "" {
		return ""
	}
	return filepath.Join(root, filepath.FromSlash(*rel))
}

// pathFieldsEqual implements the path-field rule: both resolve to
// byte-identical files, or at least one side's file is missing from disk.
func pathFieldsEqual(rootA string, a *string, rootB string, b *string) (bool, error) {
	pa := resolvePath(rootA, a)
	pb := resolvePath(rootB, b)
	if pa == "" || pb == "" {
		return true, nil
	}
	existsA := filestore.FileExists(rootA, *a)
	existsB := filestore.FileExists(rootB, *b)
	if !existsA || !existsB {
		return true, nil
	}
	return filestore.FilesEqual(pa, pb)
}

// coordEqual compares Location lat/lon strings per SPEC_FULL.md's
// trailing-zero-insensitive, ≥8-digit-precision rule.
func coordEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	va, ok1 := model.ParseCoordinate(*a)
	vb, ok2 := model.ParseCoordinate(*b)
	if !ok1 || !ok2 {
		return *a == *b
	}
	return va == vb
}

// membersEqual resolves each side's member names to user ids through its
// chat's member list, then compares the resulting id sets; names that
// don't resolve on either side are compared textually against each other.
func membersEqual(a []string, resolveA NameResolver, b []string, resolveB NameResolver) bool {
	if len(a) != len(b) {
		return false
	}
	setA := resolveNames(a, resolveA)
	setB := resolveNames(b, resolveB)
	if len(setA.ids) != len(setB.ids) || len(setA.unresolved) != len(setB.unresolved) {
		return false
	}
	for id := range setA.ids {
		if !setB.ids[id] {
			return false
		}
	}
	unresolvedB := make(map[string]int, len(setB.unresolved))
	for _, n := range setB.unresolved {
		unresolvedB[n]++
	}
	for _, n := range setA.unresolved {
		if unresolvedB[n] == 0 {
			return false
		}
		unresolvedB[n]--
	}
	return true
}

type resolvedNames struct {
	ids        map[int64]bool
	unresolved []string
}

func resolveNames(names []string, resolve NameResolver) resolvedNames {
	out := resolvedNames{ids: make(map[int64]bool)}
	for _, n := range names {
		if resolve != nil {
			if id, ok := resolve(n); ok {
				out.ids[id] = true
				continue
			}
		}
		out.unresolved = append(out.unresolved, n)
	}
	return out
}

// ContentEqual compares two Content values under their respective dataset
// roots per the path-field and coordinate rules. It does not apply the
// derived "absent content" carve-out; see DerivedContentEqual for that.
func ContentEqual(a *model.Content, sideA Side, b *model.Content, sideB Side) (bool, error) {
	if a == nil && b == nil {
		return true, nil
	}
	if a == nil || b == nil {
		return false, nil
	}
	if a.Kind != b.Kind {
		return false, nil
	}
	if !int32PtrEqual(a.Width, b.Width) || !int32PtrEqual(a.Height, b.Height) ||
		!strPtrEqual(a.MimeType, b.MimeType) || !int32PtrEqual(a.DurationSec, b.DurationSec) ||
		!strPtrEqual(a.Title, b.Title) || !strPtrEqual(a.Performer, b.Performer) ||
		!strPtrEqual(a.Emoji, b.Emoji) || !strPtrEqual(a.Address, b.Address) ||
		!strPtrEqual(a.PollQuestion, b.PollQuestion) || !strPtrEqual(a.FirstName, b.FirstName) ||
		!strPtrEqual(a.LastName, b.LastName) || !strPtrEqual(a.PhoneNumber, b.PhoneNumber) ||
		a.IsOneTime != b.IsOneTime {
		return false, nil
	}
	if a.Kind == model.ContentLocation && !coordEqual(a.LatStr, b.LatStr) {
		return false, nil
	}
	if a.Kind == model.ContentLocation && !coordEqual(a.LonStr, b.LonStr) {
		return false, nil
	}

	if ok, err := pathFieldsEqual(sideA.Root, a.Path, sideB.Root, b.Path); err != nil || !ok {
		return ok, err
	}
	return pathFieldsEqual(sideA.Root, a.ThumbnailPath, sideB.Root, b.ThumbnailPath)
}

func int32PtrEqual(a, b *int32) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func strPtrEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// textEqual compares a message's rich-text body element by element, in
// order. SearchableString is derived from the other fields and not
// compared separately.
func textEqual(a, b []model.RichTextElement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].Text != b[i].Text || a[i].Hidden != b[i].Hidden ||
			!strPtrEqual(a[i].Href, b[i].Href) {
			return false
		}
	}
	return true
}

// serviceEqual compares two Service payloads, applying membersEqual for
// subtypes carrying a Members list and pathFieldsEqual for an embedded
// photo.
func serviceEqual(a *model.Service, sideA Side, b *model.Service, sideB Side) (bool, error) {
	if a.Kind != b.Kind {
		return false, nil
	}
	if !int32PtrEqual(a.DurationSec, b.DurationSec) || !strPtrEqual(a.DiscardReason, b.DiscardReason) ||
		!int64PtrEqual(a.PinnedMessageID, b.PinnedMessageID) || a.IsBlocked != b.IsBlocked ||
		!strPtrEqual(a.Title, b.Title) {
		return false, nil
	}
	if a.Kind.HasMembers() {
		if !membersEqual(a.Members, sideA.Resolve, b.Members, sideB.Resolve) {
			return false, nil
		}
	}
	return ContentEqual(a.Photo, sideA, b.Photo, sideB)
}

// MessagesEqual implements §4.5's core message comparison: all non-path
// fields equal except internal_id, source_id, searchable_string, and (for
// regular) forward_from_name and edit_timestamp, plus the path-field and
// members rules.
func MessagesEqual(a model.Message, sideA Side, b model.Message, sideB Side) (bool, error) {
	if a.Timestamp != b.Timestamp || a.FromID != b.FromID {
		return false, nil
	}
	switch ta := a.Typed.(type) {
	case *model.Regular:
		tb, ok := b.Typed.(*model.Regular)
		if !ok {
			return false, nil
		}
		if ta.IsDeleted != tb.IsDeleted || !int64PtrEqual(ta.ReplyToMessageID, tb.ReplyToMessageID) {
			return false, nil
		}
		if !textEqual(a.Text, b.Text) {
			return false, nil
		}
		return ContentEqual(ta.Content, sideA, tb.Content, sideB)
	case *model.Service:
		tb, ok := b.Typed.(*model.Service)
		if !ok {
			return false, nil
		}
		return serviceEqual(ta, sideA, tb, sideB)
	default:
		return a.Typed == nil && b.Typed == nil, nil
	}
}

// MessagesEqualDerived is the analyzer's relaxed variant (SPEC_FULL.md §4.4
// restored detail): a regular message match is additionally allowed when
// one side has content and the other does not, provided the present side's
// content path is itself missing from disk (the side with content present
// on disk wins at merge time, so a genuine mismatch there still fails).
func MessagesEqualDerived(a model.Message, sideA Side, b model.Message, sideB Side) (bool, error) {
	ra, aOK := a.Typed.(*model.Regular)
	rb, bOK := b.Typed.(*model.Regular)
	if aOK && bOK && (ra.Content == nil) != (rb.Content == nil) {
		present, side := ra.Content, sideA
		if ra.Content == nil {
			present, side = rb.Content, sideB
		}
		if contentAbsentFromDisk(present, side) {
			aCopy, bCopy := a, b
			na := *ra
			na.Content = nil
			nb := *rb
			nb.Content = nil
			aCopy.Typed = &na
			bCopy.Typed = &nb
			return MessagesEqual(aCopy, sideA, bCopy, sideB)
		}
	}
	return MessagesEqual(a, sideA, b, sideB)
}

func contentAbsentFromDisk(c *model.Content, side Side) bool {
	if c == nil {
		return true
	}
	for _, p := range c.PathFields() {
		if p != nil && *p != "" && filestore.FileExists(side.Root, *p) {
			return false
		}
	}
	return true
}

// ChatsEqual is the merger's chat-level practical equality (restored from
// original_source/, not stated as a separate rule in spec.md): ImgPath is
// compared as a file, not a path string, and membership is compared as a
// set (order-independent, but sensitive to member count).
func ChatsEqual(a model.Chat, sideA Side, b model.Chat, sideB Side) (bool, error) {
	if a.Type != b.Type || a.SourceType != b.SourceType || !strPtrEqual(a.Name, b.Name) {
		return false, nil
	}
	if len(a.MemberIDs) != len(b.MemberIDs) {
		return false, nil
	}
	setB := make(map[int64]bool, len(b.MemberIDs))
	for _, id := range b.MemberIDs {
		setB[id] = true
	}
	for _, id := range a.MemberIDs {
		if !setB[id] {
			return false, nil
		}
	}
	return pathFieldsEqual(sideA.Root, a.ImgPath, sideB.Root, b.ImgPath)
}
