package store

import (
	"errors"
	"testing"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/model"
)

func mustInsertDataset(t *testing.T, st *Store, alias string) model.Dataset {
	t.Helper()
	d := testDataset(t, alias)
	if err := st.InsertDataset(d); err != nil {
		t.Fatalf("insert dataset: %v", err)
	}
	return d
}

func TestInsertAndListUsers(t *testing.T) {
	st := newTestStore(t)
	d := mustInsertDataset(t, st, "ds")

	self := testUser(d.UUID, 1, true)
	other := testUser(d.UUID, 2, false)
	other.Username = strp("bob")
	if err := st.InsertUser(self); err != nil {
		t.Fatalf("insert self: %v", err)
	}
	if err := st.InsertUser(other); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	users, err := st.Users(d.UUID)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	// self-first ordering
	if !users[0].IsMyself {
		t.Errorf("expected self user first, got %+v", users[0])
	}
	if users[1].ID != other.ID {
		t.Errorf("expected second user to be %d, got %d", other.ID, users[1].ID)
	}
}

func TestInsertUserConflict(t *testing.T) {
	st := newTestStore(t)
	d := mustInsertDataset(t, st, "ds")
	u := testUser(d.UUID, 1, true)
	if err := st.InsertUser(u); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	err := st.InsertUser(u)
	if !errors.Is(err, apperr.Conflict) {
		t.Errorf("expected Conflict, got %v", err)
	}
}

func TestUpdateUserNotFound(t *testing.T) {
	st := newTestStore(t)
	d := mustInsertDataset(t, st, "ds")
	u := testUser(d.UUID, 99, false)
	err := st.UpdateUser(u)
	if !errors.Is(err, apperr.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestUpdateUserRefreshesPersonalChatName(t *testing.T) {
	st := newTestStore(t)
	d := mustInsertDataset(t, st, "ds")

	self := testUser(d.UUID, 1, true)
	other := testUser(d.UUID, 2, false)
	if err := st.InsertUser(self); err != nil {
		t.Fatalf("insert self: %v", err)
	}
	if err := st.InsertUser(other); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	oldName := other.PrettyName()
	chat := model.Chat{
		DatasetUUID: d.UUID,
		ID:          10,
		Name:        strp(oldName),
		SourceType:  "telegram",
		Type:        model.ChatPersonal,
		MemberIDs:   []int64{self.ID, other.ID},
	}
	if err := st.InsertChat(chat, "", ""); err != nil {
		t.Fatalf("insert chat: %v", err)
	}

	newFirst := "Robert"
	newLast := "Smith"
	other.FirstName = &newFirst
	other.LastName = &newLast
	if err := st.UpdateUser(other); err != nil {
		t.Fatalf("update user: %v", err)
	}

	got, err := st.ChatOption(d.UUID, chat.ID)
	if err != nil {
		t.Fatalf("chat option: %v", err)
	}
	if got == nil || got.Name == nil || *got.Name != other.PrettyName() {
		t.Errorf("expected chat name %q, got %+v", other.PrettyName(), got)
	}
}

func TestUpdateUserRewritesMemberLists(t *testing.T) {
	st := newTestStore(t)
	d := mustInsertDataset(t, st, "ds")

	self := testUser(d.UUID, 1, true)
	other := testUser(d.UUID, 2, false)
	if err := st.InsertUser(self); err != nil {
		t.Fatalf("insert self: %v", err)
	}
	if err := st.InsertUser(other); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	group := model.Chat{
		DatasetUUID: d.UUID,
		ID:          20,
		SourceType:  "telegram",
		Type:        model.ChatPrivateGroup,
		MemberIDs:   []int64{self.ID, other.ID},
	}
	if err := st.InsertChat(group, "", ""); err != nil {
		t.Fatalf("insert chat: %v", err)
	}

	oldName := other.PrettyName()
	msg := model.Message{
		DatasetUUID: d.UUID,
		ChatID:      group.ID,
		FromID:      self.ID,
		Typed: &model.Service{
			Kind:    model.ServiceGroupCreate,
			Members: []string{oldName},
		},
	}
	if _, err := st.InsertMessages(d.UUID, group.ID, []model.Message{msg}, "", ""); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	newFirst := "Zoe"
	other.FirstName = &newFirst
	other.LastName = nil
	if err := st.UpdateUser(other); err != nil {
		t.Fatalf("update user: %v", err)
	}

	msgs, err := st.First(d.UUID, group.ID, 1)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	svc, ok := msgs[0].Typed.(*model.Service)
	if !ok {
		t.Fatalf("expected *model.Service, got %T", msgs[0].Typed)
	}
	if len(svc.Members) != 1 || svc.Members[0] != other.PrettyName() {
		t.Errorf("expected members %v, got %v", []string{other.PrettyName()}, svc.Members)
	}
}
