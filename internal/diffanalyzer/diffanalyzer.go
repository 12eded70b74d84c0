// Package diffanalyzer implements the diff analyzer (SPEC_FULL.md §4.6): it
// walks two chats' message streams in lockstep and partitions them into an
// ordered list of Match/Retention/Addition/Conflict sections.
package diffanalyzer

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/dao"
	"github.com/archivekeep/chathist/internal/equality"
	"github.com/archivekeep/chathist/internal/model"
)

// batchSize is the streaming read-ahead batch per side.
const batchSize = 1000

// SectionKind discriminates one stretch of the combined master/slave stream.
type SectionKind string

const (
	SectionMatch     SectionKind = "match"
	SectionRetention SectionKind = "retention"
	SectionAddition  SectionKind = "addition"
	SectionConflict  SectionKind = "conflict"
)

// Section is one ordered stretch of the analysis output. Unused id fields
// (e.g. FirstS/LastS on a Retention) are zero.
type Section struct {
	Kind   SectionKind
	FirstM int64
	LastM  int64
	FirstS int64
	LastS  int64
}

// Analyzer compares a master chat against a slave chat.
type Analyzer struct {
	MasterDAO  dao.ReadDAO
	MasterRoot string
	SlaveDAO   dao.ReadDAO
	SlaveRoot  string

	logger *slog.Logger
}

// New builds an Analyzer over the given DAOs and dataset roots.
func New(masterDAO dao.ReadDAO, masterRoot string, slaveDAO dao.ReadDAO, slaveRoot string) *Analyzer {
	return &Analyzer{MasterDAO: masterDAO, MasterRoot: masterRoot, SlaveDAO: slaveDAO, SlaveRoot: slaveRoot, logger: slog.Default()}
}

// WithLogger overrides the analyzer's logger.
func (a *Analyzer) WithLogger(l *slog.Logger) *Analyzer {
	a.logger = l
	return a
}

// Analyze partitions chat masterChatID (dataset masterDSUUID) against
// slaveChatID (dataset slaveDSUUID) into ordered sections.
func (a *Analyzer) Analyze(masterDSUUID uuid.UUID, masterChatID int64, slaveDSUUID uuid.UUID, slaveChatID int64) ([]Section, error) {
	mResolve, err := buildResolver(a.MasterDAO, masterDSUUID, masterChatID)
	if err != nil {
		return nil, err
	}
	sResolve, err := buildResolver(a.SlaveDAO, slaveDSUUID, slaveChatID)
	if err != nil {
		return nil, err
	}

	mIt, err := newBatchIterator(a.MasterDAO, masterDSUUID, masterChatID)
	if err != nil {
		return nil, err
	}
	sIt, err := newBatchIterator(a.SlaveDAO, slaveDSUUID, slaveChatID)
	if err != nil {
		return nil, err
	}

	sideM := equality.Side{Root: a.MasterRoot, Resolve: mResolve}
	sideS := equality.Side{Root: a.SlaveRoot, Resolve: sResolve}

	sections, err := analyze(mIt, sIt, sideM, sideS)
	if err != nil {
		return nil, err
	}
	a.logger.Info("analyzed chat diff", "master_chat", masterChatID, "slave_chat", slaveChatID, "sections", len(sections))
	return sections, nil
}

// buildResolver maps each chat member's pretty name to its user id, for
// practical equality's member-list resolution.
func buildResolver(d dao.ReadDAO, dsUUID uuid.UUID, chatID int64) (equality.NameResolver, error) {
	chat, err := d.ChatOption(dsUUID, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, apperr.New(apperr.NotFound, "chat %d not found in dataset %s", chatID, dsUUID)
	}
	users, err := d.Users(dsUUID)
	if err != nil {
		return nil, err
	}
	members := make(map[int64]bool, len(chat.MemberIDs))
	for _, id := range chat.MemberIDs {
		members[id] = true
	}
	byName := make(map[string]int64)
	for _, u := range users {
		if members[u.ID] {
			byName[u.PrettyName()] = u.ID
		}
	}
	return func(name string) (int64, bool) {
		id, ok := byName[name]
		return id, ok
	}, nil
}

type stateKind int

const (
	stateNone stateKind = iota
	stateMatch
	stateRetention
	stateAddition
	stateConflict
)

type analysisState struct {
	kind   stateKind
	firstM int64
	firstS int64
}

func (s analysisState) close(lastM, lastS int64) Section {
	switch s.kind {
	case stateMatch:
		return Section{Kind: SectionMatch, FirstM: s.firstM, LastM: lastM, FirstS: s.firstS, LastS: lastS}
	case stateRetention:
		return Section{Kind: SectionRetention, FirstM: s.firstM, LastM: lastM}
	case stateAddition:
		return Section{Kind: SectionAddition, FirstS: s.firstS, LastS: lastS}
	case stateConflict:
		return Section{Kind: SectionConflict, FirstM: s.firstM, LastM: lastM, FirstS: s.firstS, LastS: lastS}
	default:
		panic("close called on stateNone")
	}
}

// matches implements the analyzer's derived equality ("equals with no
// mismatching content" in the original design): a regular message match is
// allowed when one side has no content at all, provided the other side's
// content is itself absent from disk.
func matches(mm *model.Message, sideM equality.Side, sm *model.Message, sideS equality.Side) (bool, error) {
	return equality.MessagesEqualDerived(*mm, sideM, *sm, sideS)
}

type cmpResult int

const (
	cmpLess cmpResult = iota - 1
	cmpEqual
	cmpGreater
)

// cmp orders mm relative to sm: cmpGreater means the slave side is behind
// (advance it first, producing an Addition section); cmpLess means the
// master side is behind (advance it first, producing a Retention section).
func cmp(mm, sm *model.Message) (cmpResult, error) {
	switch {
	case mm == nil && sm == nil:
		return cmpEqual, nil
	case mm == nil:
		return cmpGreater, nil
	case sm == nil:
		return cmpLess, nil
	}
	if mm.Timestamp != sm.Timestamp {
		if mm.Timestamp > sm.Timestamp {
			return cmpGreater, nil
		}
		return cmpLess, nil
	}
	if mm.SourceID != nil && sm.SourceID != nil {
		switch {
		case *mm.SourceID > *sm.SourceID:
			return cmpGreater, nil
		case *mm.SourceID < *sm.SourceID:
			return cmpLess, nil
		default:
			return cmpEqual, nil
		}
	}
	if mm.SearchableString == sm.SearchableString {
		return cmpEqual, nil
	}
	return 0, apperr.New(apperr.Ambiguous, "cannot order master message %d against slave message %d: no shared source id and searchable strings differ", mm.InternalID, sm.InternalID)
}

func analyze(mIt, sIt *batchIterator, sideM, sideS equality.Side) ([]Section, error) {
	var sections []Section
	state := analysisState{kind: stateNone}

	for {
		mm := mIt.peek()
		sm := sIt.peek()

		switch {
		case state.kind == stateNone && mm != nil && sm != nil:
			eq, err := matches(mm, sideM, sm, sideS)
			if err != nil {
				return nil, err
			}
			if eq {
				a, _ := mIt.advance()
				b, _ := sIt.advance()
				state = analysisState{kind: stateMatch, firstM: a.InternalID, firstS: b.InternalID}
				continue
			}
			if mm.SourceID != nil && sm.SourceID != nil && *mm.SourceID == *sm.SourceID {
				if err := checkTimestampShift(mm, sideM, sm, sideS); err != nil {
					return nil, err
				}
				a, _ := mIt.advance()
				b, _ := sIt.advance()
				state = analysisState{kind: stateConflict, firstM: a.InternalID, firstS: b.InternalID}
				continue
			}

		case state.kind == stateMatch && mm != nil && sm != nil:
			eq, err := matches(mm, sideM, sm, sideS)
			if err != nil {
				return nil, err
			}
			if eq {
				mIt.advance()
				sIt.advance()
				continue
			}

		case state.kind == stateConflict && mm != nil && sm != nil:
			eq, err := matches(mm, sideM, sm, sideS)
			if err != nil {
				return nil, err
			}
			if !eq {
				mIt.advance()
				sIt.advance()
				continue
			}
		}

		c, err := cmp(mm, sm)
		if err != nil {
			return nil, err
		}

		switch {
		case state.kind == stateNone && c == cmpGreater && sm != nil:
			b, _ := sIt.advance()
			state = analysisState{kind: stateAddition, firstS: b.InternalID}
			continue
		case state.kind == stateNone && c == cmpLess && mm != nil:
			a, _ := mIt.advance()
			state = analysisState{kind: stateRetention, firstM: a.InternalID}
			continue
		case state.kind == stateAddition && c == cmpGreater && sm != nil:
			sIt.advance()
			continue
		case state.kind == stateRetention && c == cmpLess && mm != nil:
			mIt.advance()
			continue
		}

		if state.kind != stateNone {
			sections = append(sections, state.close(mIt.lastID, sIt.lastID))
			state = analysisState{kind: stateNone}
			continue
		}

		if mm == nil && sm == nil {
			return sections, nil
		}

		return nil, apperr.New(apperr.Invariant, "analyzer reached an unexpected state at master=%v slave=%v", idOrNil(mm), idOrNil(sm))
	}
}

func idOrNil(m *model.Message) interface{} {
	if m == nil {
		return nil
	}
	return m.InternalID
}

// checkTimestampShift replays the derived equality with the master
// message's timestamp set to the slave's; if that succeeds, the two
// datasets are time-shifted relative to each other and analysis aborts
// rather than guessing.
func checkTimestampShift(mm *model.Message, sideM equality.Side, sm *model.Message, sideS equality.Side) error {
	shifted := *mm
	shifted.Timestamp = sm.Timestamp
	eq, err := matches(&shifted, sideM, sm, sideS)
	if err != nil {
		return err
	}
	if !eq {
		return nil
	}
	diff := sm.Timestamp - mm.Timestamp
	direction := "ahead of"
	if diff < 0 {
		direction = "behind"
		diff = -diff
	}
	return apperr.New(apperr.Ambiguous,
		"time shift detected between datasets: slave is %s master by %d sec (%d hrs)", direction, diff, diff/3600)
}

// AnalyzeForce is the coarse presentation mode (SPEC_FULL.md §4.6): any
// non-trivial output collapses into a single Conflict covering the full
// overlapping span, preserving only the outermost Match runs that touch a
// stream boundary.
func (a *Analyzer) AnalyzeForce(masterDSUUID uuid.UUID, masterChatID int64, slaveDSUUID uuid.UUID, slaveChatID int64) ([]Section, error) {
	sections, err := a.Analyze(masterDSUUID, masterChatID, slaveDSUUID, slaveChatID)
	if err != nil {
		return nil, err
	}
	return collapseToForce(sections), nil
}

func collapseToForce(sections []Section) []Section {
	if len(sections) == 0 {
		return sections
	}

	var out []Section
	start := 0
	if sections[0].Kind == SectionMatch {
		out = append(out, sections[0])
		start = 1
	}
	end := len(sections)
	keepLast := end > start && sections[end-1].Kind == SectionMatch
	if keepLast {
		end--
	}

	if end > start {
		merged := Section{Kind: SectionConflict}
		for _, s := range sections[start:end] {
			if s.FirstM != 0 && (merged.FirstM == 0 || s.FirstM < merged.FirstM) {
				merged.FirstM = s.FirstM
			}
			if s.FirstS != 0 && (merged.FirstS == 0 || s.FirstS < merged.FirstS) {
				merged.FirstS = s.FirstS
			}
			if s.LastM > merged.LastM {
				merged.LastM = s.LastM
			}
			if s.LastS > merged.LastS {
				merged.LastS = s.LastS
			}
		}
		out = append(out, merged)
	}
	if keepLast {
		out = append(out, sections[end])
	}
	return out
}
