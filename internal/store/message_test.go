package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/archivekeep/chathist/internal/filestore"
	"github.com/archivekeep/chathist/internal/model"
)

func TestContentSubdirSharedContactUsesFiles(t *testing.T) {
	if got := contentSubdir(model.ContentSharedContact); got != filestore.SubdirFiles {
		t.Errorf("expected shared_contact vcards to live under files/, got %q", got)
	}
}

func TestContentSubdirLocationAndPollHaveNoSubdir(t *testing.T) {
	if got := contentSubdir(model.ContentLocation); got != filestore.SubdirNone {
		t.Errorf("expected location to have no subdir, got %q", got)
	}
	if got := contentSubdir(model.ContentPoll); got != filestore.SubdirNone {
		t.Errorf("expected poll to have no subdir, got %q", got)
	}
}

func setupChat(t *testing.T, st *Store) (model.Dataset, model.Chat) {
	t.Helper()
	d := mustInsertDataset(t, st, "ds")
	self := testUser(d.UUID, 1, true)
	if err := st.InsertUser(self); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	chat := model.Chat{DatasetUUID: d.UUID, ID: 1, SourceType: "telegram", Type: model.ChatPrivateGroup, MemberIDs: []int64{self.ID}}
	if err := st.InsertChat(chat, "", ""); err != nil {
		t.Fatalf("insert chat: %v", err)
	}
	return d, chat
}

func plainMessage(dsUUID model.Dataset, chatID int64, ts int64, text string) model.Message {
	return model.Message{
		DatasetUUID: dsUUID.UUID,
		ChatID:      chatID,
		Timestamp:   ts,
		FromID:      1,
		Text:        []model.RichTextElement{model.NewRichTextElement(model.RTEPlain, text)},
		Typed:       &model.Regular{},
	}
}

func TestInsertMessagesAssignsSequentialIDs(t *testing.T) {
	st := newTestStore(t)
	d, chat := setupChat(t, st)

	batch := []model.Message{
		plainMessage(d, chat.ID, 100, "hello"),
		plainMessage(d, chat.ID, 200, "world"),
	}
	ids, err := st.InsertMessages(d.UUID, chat.ID, batch, "", "")
	if err != nil {
		t.Fatalf("insert messages: %v", err)
	}
	if len(ids) != 2 || ids[1] != ids[0]+1 {
		t.Fatalf("expected sequential ids, got %v", ids)
	}
}

func TestFirstAndLast(t *testing.T) {
	st := newTestStore(t)
	d, chat := setupChat(t, st)

	batch := []model.Message{
		plainMessage(d, chat.ID, 1, "a"),
		plainMessage(d, chat.ID, 2, "b"),
		plainMessage(d, chat.ID, 3, "c"),
	}
	if _, err := st.InsertMessages(d.UUID, chat.ID, batch, "", ""); err != nil {
		t.Fatalf("insert messages: %v", err)
	}

	first, err := st.First(d.UUID, chat.ID, 2)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(first) != 2 || first[0].Timestamp != 1 || first[1].Timestamp != 2 {
		t.Errorf("unexpected first: %+v", first)
	}

	last, err := st.Last(d.UUID, chat.ID, 2)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if len(last) != 2 || last[0].Timestamp != 2 || last[1].Timestamp != 3 {
		t.Errorf("unexpected last (should be ascending): %+v", last)
	}
}

func TestBeforeAfter(t *testing.T) {
	st := newTestStore(t)
	d, chat := setupChat(t, st)

	batch := []model.Message{
		plainMessage(d, chat.ID, 1, "a"),
		plainMessage(d, chat.ID, 2, "b"),
		plainMessage(d, chat.ID, 3, "c"),
	}
	ids, err := st.InsertMessages(d.UUID, chat.ID, batch, "", "")
	if err != nil {
		t.Fatalf("insert messages: %v", err)
	}

	before, err := st.Before(d.UUID, chat.ID, ids[2], 10)
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	if len(before) != 2 || before[0].Timestamp != 1 {
		t.Errorf("unexpected before: %+v", before)
	}

	after, err := st.After(d.UUID, chat.ID, ids[0], 10)
	if err != nil {
		t.Fatalf("after: %v", err)
	}
	if len(after) != 2 || after[0].Timestamp != 2 {
		t.Errorf("unexpected after: %+v", after)
	}
}

func TestSliceAndSliceLen(t *testing.T) {
	st := newTestStore(t)
	d, chat := setupChat(t, st)

	batch := []model.Message{
		plainMessage(d, chat.ID, 1, "a"),
		plainMessage(d, chat.ID, 2, "b"),
		plainMessage(d, chat.ID, 3, "c"),
	}
	ids, err := st.InsertMessages(d.UUID, chat.ID, batch, "", "")
	if err != nil {
		t.Fatalf("insert messages: %v", err)
	}

	n, err := st.SliceLen(d.UUID, chat.ID, ids[0], ids[2])
	if err != nil {
		t.Fatalf("slice len: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}

	slice, err := st.Slice(d.UUID, chat.ID, ids[1], ids[2])
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if len(slice) != 2 || slice[0].Timestamp != 2 {
		t.Errorf("unexpected slice: %+v", slice)
	}

	empty, err := st.Slice(d.UUID, chat.ID, ids[2], ids[0])
	if err != nil {
		t.Fatalf("slice (inverted): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty slice for inverted range, got %v", empty)
	}
}

func TestAbbreviatedSliceUnderLimit(t *testing.T) {
	st := newTestStore(t)
	d, chat := setupChat(t, st)
	batch := []model.Message{plainMessage(d, chat.ID, 1, "a"), plainMessage(d, chat.ID, 2, "b")}
	ids, err := st.InsertMessages(d.UUID, chat.ID, batch, "", "")
	if err != nil {
		t.Fatalf("insert messages: %v", err)
	}

	left, right, between, err := st.AbbreviatedSlice(d.UUID, chat.ID, ids[0], ids[1], 10, 3)
	if err != nil {
		t.Fatalf("abbreviated slice: %v", err)
	}
	if len(left) != 2 || len(right) != 0 || between != 0 {
		t.Errorf("expected full left slice under limit, got left=%d right=%d between=%d", len(left), len(right), between)
	}
}

func TestAbbreviatedSliceOverLimit(t *testing.T) {
	st := newTestStore(t)
	d, chat := setupChat(t, st)
	var batch []model.Message
	for i := int64(1); i <= 10; i++ {
		batch = append(batch, plainMessage(d, chat.ID, i, "x"))
	}
	ids, err := st.InsertMessages(d.UUID, chat.ID, batch, "", "")
	if err != nil {
		t.Fatalf("insert messages: %v", err)
	}

	left, right, between, err := st.AbbreviatedSlice(d.UUID, chat.ID, ids[0], ids[9], 4, 2)
	if err != nil {
		t.Fatalf("abbreviated slice: %v", err)
	}
	if len(left) != 2 || len(right) != 2 {
		t.Fatalf("expected 2+2 abbreviated, got left=%d right=%d", len(left), len(right))
	}
	if between != 6 {
		t.Errorf("expected betweenCount 6, got %d", between)
	}
}

func TestMessageContentRoundTrip(t *testing.T) {
	st := newTestStore(t)
	d, chat := setupChat(t, st)

	emoji := "🔥"
	msg := model.Message{
		DatasetUUID: d.UUID,
		ChatID:      chat.ID,
		Timestamp:   42,
		FromID:      1,
		Typed: &model.Regular{
			Content: &model.Content{Kind: model.ContentSticker, Emoji: &emoji},
		},
	}
	ids, err := st.InsertMessages(d.UUID, chat.ID, []model.Message{msg}, "", "")
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}

	got, err := st.MessageOptionByInternalID(d.UUID, chat.ID, ids[0])
	if err != nil {
		t.Fatalf("message option: %v", err)
	}
	if got == nil {
		t.Fatalf("expected message to be found")
	}

	want := msg
	want.InternalID = ids[0]
	opts := cmp.Options{cmpopts.IgnoreFields(model.Message{}, "SearchableString")}
	if diff := cmp.Diff(want, *got, opts...); diff != "" {
		t.Errorf("round-tripped message mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageOptionBySourceID(t *testing.T) {
	st := newTestStore(t)
	d, chat := setupChat(t, st)
	sourceID := int64(777)
	msg := plainMessage(d, chat.ID, 5, "hi")
	msg.SourceID = &sourceID
	if _, err := st.InsertMessages(d.UUID, chat.ID, []model.Message{msg}, "", ""); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	got, err := st.MessageOption(d.UUID, chat.ID, sourceID)
	if err != nil {
		t.Fatalf("message option: %v", err)
	}
	if got == nil || got.Timestamp != 5 {
		t.Errorf("expected message with source id %d, got %+v", sourceID, got)
	}

	none, err := st.MessageOption(d.UUID, chat.ID, 999999)
	if err != nil {
		t.Fatalf("message option (missing): %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for missing source id, got %+v", none)
	}
}
