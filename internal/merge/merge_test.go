package merge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/diffanalyzer"
	"github.com/archivekeep/chathist/internal/memdao"
	"github.com/archivekeep/chathist/internal/model"
)

func sid(v int64) *int64 { return &v }

func regular(internalID int64, sourceID *int64, ts, fromID int64, text string) model.Message {
	return model.Message{InternalID: internalID, SourceID: sourceID, Timestamp: ts, FromID: fromID, SearchableString: text, Typed: &model.Regular{}}
}

func newSide(t *testing.T, self int64, otherUsers []model.User, chat model.Chat, msgs []model.Message) (*memdao.Dao, uuid.UUID) {
	t.Helper()
	dsUUID := uuid.New()
	users := append([]model.User{{DatasetUUID: dsUUID, ID: self, IsMyself: true}}, otherUsers...)
	chat.DatasetUUID = dsUUID
	d := memdao.New("")
	d.PutDataset(model.Dataset{UUID: dsUUID, Alias: "src"}, users, []model.Chat{chat})
	for i := range msgs {
		msgs[i].DatasetUUID = dsUUID
		msgs[i].ChatID = chat.ID
	}
	if err := d.PutMessages(dsUUID, chat.ID, msgs); err != nil {
		t.Fatalf("put messages: %v", err)
	}
	return d, dsUUID
}

func TestMergeRetainAndAddChats(t *testing.T) {
	otherA := model.User{ID: 2, FirstName: strp("Ann")}
	masterChat := model.Chat{ID: 1, SourceType: "telegram", Type: model.ChatPrivateGroup, MemberIDs: []int64{1, 2}}
	masterDAO, masterDS := newSide(t, 1, []model.User{otherA}, masterChat, []model.Message{
		regular(1, sid(100), 10, 1, "hi"),
	})

	otherB := model.User{ID: 3, FirstName: strp("Bob")}
	slaveChat := model.Chat{ID: 2, SourceType: "telegram", Type: model.ChatPrivateGroup, MemberIDs: []int64{1, 3}}
	slaveDAO, slaveDS := newSide(t, 1, []model.User{otherB}, slaveChat, []model.Message{
		regular(1, sid(200), 20, 1, "yo"),
	})

	m := New(masterDAO, masterDS, "", slaveDAO, slaveDS, "")
	result, err := m.Merge(t.TempDir(),
		[]UserMergeDecision{
			MatchOrDontReplaceUser{ID: 1},
			RetainUser{MasterID: 2},
			AddUser{SlaveID: 3},
		},
		[]ChatMergeDecision{
			RetainChat{MasterChatID: 1},
			AddChat{SlaveChatID: 2},
		},
	)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	defer result.Store.Close()

	users, err := result.Store.Users(result.DatasetUUID)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}

	chats, err := result.Store.Chats(result.DatasetUUID)
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	for _, c := range chats {
		if c.MsgCount != 1 {
			t.Errorf("chat %d: expected msg_count 1, got %d", c.ID, c.MsgCount)
		}
	}
}

func TestMergeRejectsIncompleteUserCoverage(t *testing.T) {
	otherA := model.User{ID: 2, FirstName: strp("Ann")}
	masterChat := model.Chat{ID: 1, SourceType: "telegram", Type: model.ChatPrivateGroup, MemberIDs: []int64{1, 2}}
	masterDAO, masterDS := newSide(t, 1, []model.User{otherA}, masterChat, nil)
	slaveDAO, slaveDS := newSide(t, 1, nil, model.Chat{ID: 1, SourceType: "telegram", Type: model.ChatPrivateGroup, MemberIDs: []int64{1}}, nil)

	m := New(masterDAO, masterDS, "", slaveDAO, slaveDS, "")
	_, err := m.Merge(t.TempDir(), nil, nil)
	if err == nil {
		t.Fatal("expected error for missing user decisions")
	}
}

func TestMergeChatWithDiffAnalyzerSections(t *testing.T) {
	masterChat := model.Chat{ID: 1, SourceType: "telegram", Type: model.ChatPrivateGroup, MemberIDs: []int64{1}}
	masterDAO, masterDS := newSide(t, 1, nil, masterChat, []model.Message{
		regular(1, sid(100), 10, 1, "shared"),
		regular(2, sid(101), 20, 1, "master only"),
	})

	slaveChat := model.Chat{ID: 1, SourceType: "telegram", Type: model.ChatPrivateGroup, MemberIDs: []int64{1}}
	slaveDAO, slaveDS := newSide(t, 1, nil, slaveChat, []model.Message{
		regular(1, sid(100), 10, 1, "shared"),
	})

	an := diffanalyzer.New(masterDAO, "", slaveDAO, "")
	sections, err := an.Analyze(masterDS, masterChat.ID, slaveDS, slaveChat.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var decisions []MessagesMergeDecision
	for _, s := range sections {
		switch s.Kind {
		case diffanalyzer.SectionMatch:
			decisions = append(decisions, MatchSection{Section: s})
		case diffanalyzer.SectionRetention:
			decisions = append(decisions, RetainSection{Section: s})
		case diffanalyzer.SectionAddition:
			decisions = append(decisions, AddSection{Section: s})
		case diffanalyzer.SectionConflict:
			decisions = append(decisions, DontReplaceSection{Section: s})
		}
	}

	m := New(masterDAO, masterDS, "", slaveDAO, slaveDS, "")
	result, err := m.Merge(t.TempDir(),
		[]UserMergeDecision{MatchOrDontReplaceUser{ID: 1}},
		[]ChatMergeDecision{MergeChat{ChatID: 1, MessageMerges: decisions}},
	)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	defer result.Store.Close()

	chats, err := result.Store.Chats(result.DatasetUUID)
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(chats))
	}
	if chats[0].MsgCount != 2 {
		t.Errorf("expected msg_count 2 (1 match + 1 retention), got %d", chats[0].MsgCount)
	}

	msgs, err := result.Store.First(result.DatasetUUID, chats[0].ID, 10)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func strp(s string) *string { return &s }

func TestCountPresentAttachmentsRequiresFileOnDisk(t *testing.T) {
	root := t.TempDir()
	msg := model.Message{Typed: &model.Regular{Content: &model.Content{
		Kind: model.ContentPhoto,
		Path: strp("photos/dangling.jpg"),
	}}}

	if n := countPresentAttachments(msg, root); n != 0 {
		t.Errorf("expected 0 for a path with no file on disk, got %d", n)
	}

	if err := os.MkdirAll(filepath.Join(root, "photos"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "photos", "dangling.jpg"), []byte("bytes"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if n := countPresentAttachments(msg, root); n != 1 {
		t.Errorf("expected 1 once the file exists on disk, got %d", n)
	}
}
