package diffanalyzer

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/memdao"
	"github.com/archivekeep/chathist/internal/model"
)

func newFixture(t *testing.T, msgs []model.Message) (*memdao.Dao, uuid.UUID, int64) {
	t.Helper()
	dsUUID := uuid.New()
	d := memdao.New("")
	chat := model.Chat{DatasetUUID: dsUUID, ID: 1, SourceType: "telegram", Type: model.ChatPrivateGroup, MemberIDs: []int64{1}}
	d.PutDataset(model.Dataset{UUID: dsUUID, Alias: "ds"}, []model.User{{DatasetUUID: dsUUID, ID: 1, IsMyself: true}}, []model.Chat{chat})
	for i := range msgs {
		msgs[i].DatasetUUID = dsUUID
		msgs[i].ChatID = chat.ID
	}
	if err := d.PutMessages(dsUUID, chat.ID, msgs); err != nil {
		t.Fatalf("put messages: %v", err)
	}
	return d, dsUUID, chat.ID
}

func regularText(internalID int64, sourceID *int64, ts int64, text string) model.Message {
	return model.Message{
		InternalID:       internalID,
		SourceID:         sourceID,
		Timestamp:        ts,
		FromID:           1,
		SearchableString: text,
		Typed:            &model.Regular{},
	}
}

func sid(v int64) *int64 { return &v }

func TestAnalyzeAllMatch(t *testing.T) {
	mMsgs := []model.Message{
		regularText(1, sid(100), 10, "hello"),
		regularText(2, sid(101), 20, "world"),
	}
	sMsgs := []model.Message{
		regularText(1, sid(100), 10, "hello"),
		regularText(2, sid(101), 20, "world"),
	}
	mDao, mDS, mChat := newFixture(t, mMsgs)
	sDao, sDS, sChat := newFixture(t, sMsgs)

	an := New(mDao, "", sDao, "")
	sections, err := an.Analyze(mDS, mChat, sDS, sChat)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(sections) != 1 || sections[0].Kind != SectionMatch {
		t.Fatalf("expected single Match section, got %+v", sections)
	}
	if sections[0].FirstM != 1 || sections[0].LastM != 2 || sections[0].FirstS != 1 || sections[0].LastS != 2 {
		t.Errorf("unexpected match bounds: %+v", sections[0])
	}
}

func TestAnalyzeRetention(t *testing.T) {
	mMsgs := []model.Message{
		regularText(1, sid(100), 10, "only in master"),
		regularText(2, sid(101), 20, "shared"),
	}
	sMsgs := []model.Message{
		regularText(1, sid(101), 20, "shared"),
	}
	mDao, mDS, mChat := newFixture(t, mMsgs)
	sDao, sDS, sChat := newFixture(t, sMsgs)

	an := New(mDao, "", sDao, "")
	sections, err := an.Analyze(mDS, mChat, sDS, sChat)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %+v", sections)
	}
	if sections[0].Kind != SectionRetention || sections[0].FirstM != 1 || sections[0].LastM != 1 {
		t.Errorf("expected leading retention of message 1, got %+v", sections[0])
	}
	if sections[1].Kind != SectionMatch {
		t.Errorf("expected trailing match, got %+v", sections[1])
	}
}

func TestAnalyzeAddition(t *testing.T) {
	mMsgs := []model.Message{
		regularText(1, sid(100), 10, "shared"),
	}
	sMsgs := []model.Message{
		regularText(1, sid(100), 10, "shared"),
		regularText(2, sid(101), 20, "only in slave"),
	}
	mDao, mDS, mChat := newFixture(t, mMsgs)
	sDao, sDS, sChat := newFixture(t, sMsgs)

	an := New(mDao, "", sDao, "")
	sections, err := an.Analyze(mDS, mChat, sDS, sChat)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %+v", sections)
	}
	if sections[0].Kind != SectionMatch {
		t.Errorf("expected leading match, got %+v", sections[0])
	}
	if sections[1].Kind != SectionAddition || sections[1].FirstS != 2 || sections[1].LastS != 2 {
		t.Errorf("expected trailing addition of message 2, got %+v", sections[1])
	}
}

func TestAnalyzeConflict(t *testing.T) {
	mMsgs := []model.Message{regularText(1, sid(100), 10, "same text")}
	sMsgs := []model.Message{regularText(1, sid(100), 10, "same text")}
	sMsgs[0].Typed = &model.Regular{IsDeleted: true}
	mDao, mDS, mChat := newFixture(t, mMsgs)
	sDao, sDS, sChat := newFixture(t, sMsgs)

	an := New(mDao, "", sDao, "")
	sections, err := an.Analyze(mDS, mChat, sDS, sChat)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(sections) != 1 || sections[0].Kind != SectionConflict {
		t.Fatalf("expected single Conflict section, got %+v", sections)
	}
}

func TestAnalyzeDetectsTimestampShift(t *testing.T) {
	mMsgs := []model.Message{regularText(1, sid(100), 10, "same"), regularText(2, sid(101), 20, "same2")}
	sMsgs := []model.Message{regularText(1, sid(100), 3610, "same"), regularText(2, sid(101), 3620, "same2")}
	mDao, mDS, mChat := newFixture(t, mMsgs)
	sDao, sDS, sChat := newFixture(t, sMsgs)

	an := New(mDao, "", sDao, "")
	_, err := an.Analyze(mDS, mChat, sDS, sChat)
	if !errors.Is(err, apperr.Ambiguous) {
		t.Fatalf("expected Ambiguous (time shift) error, got %v", err)
	}
}

func TestAnalyzeForceCollapsesToSingleConflict(t *testing.T) {
	mMsgs := []model.Message{
		regularText(1, sid(100), 10, "shared start"),
		regularText(2, sid(101), 20, "master only"),
		regularText(3, sid(102), 40, "shared end"),
	}
	sMsgs := []model.Message{
		regularText(1, sid(100), 10, "shared start"),
		regularText(2, sid(103), 30, "slave only"),
		regularText(3, sid(102), 40, "shared end"),
	}
	mDao, mDS, mChat := newFixture(t, mMsgs)
	sDao, sDS, sChat := newFixture(t, sMsgs)

	an := New(mDao, "", sDao, "")
	sections, err := an.AnalyzeForce(mDS, mChat, sDS, sChat)
	if err != nil {
		t.Fatalf("analyze force: %v", err)
	}
	var conflicts, matches int
	for _, s := range sections {
		switch s.Kind {
		case SectionConflict:
			conflicts++
		case SectionMatch:
			matches++
		}
	}
	if conflicts != 1 {
		t.Errorf("expected exactly 1 collapsed conflict section, got %d (%+v)", conflicts, sections)
	}
}
