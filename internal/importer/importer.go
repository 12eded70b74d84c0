// Package importer defines the contract every chat-history source parser
// satisfies (SPEC_FULL.md §6). This package holds only the interface and
// its supporting types; concrete source parsers (Telegram, WhatsApp, Tinder,
// Badoo, MRA, plain-text exports) live in their own packages and are never
// imported here.
package importer

import (
	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/memdao"
	"github.com/archivekeep/chathist/internal/model"
)

// SourceType names the chat-history export format an Importer parses.
// Values are persisted as dataset.source_type and must not be renamed.
type SourceType string

const (
	SourceTextImport   SourceType = "TextImport"
	SourceTelegram     SourceType = "Telegram"
	SourceWhatsappDb   SourceType = "WhatsappDb"
	SourceWhatsappText SourceType = "WhatsappText"
	SourceTinderDb     SourceType = "TinderDb"
	SourceBadooDb      SourceType = "BadooDb"
	SourceMra          SourceType = "Mra"
)

// MyselfChooser resolves which of several candidate users is the dataset
// owner, for exports where the self user cannot be determined from the
// source data alone. It returns the chosen candidate's index into
// candidates, or an error if the caller declines to choose.
type MyselfChooser func(candidates []model.User) (int, error)

// Importer parses one chat-history export format into an in-memory dataset
// ready for bulkcopy.CopyAllFrom into a persistent store.
type Importer interface {
	// Name is the human-facing label shown in source-selection UI.
	Name() string

	// SourceType identifies which format this importer handles.
	SourceType() SourceType

	// LooksAboutRight cheaply sniffs path (filename pattern, magic bytes,
	// first-line shape) without fully parsing it, so callers can pick an
	// importer before committing to a full Load.
	LooksAboutRight(path string) (bool, error)

	// Load fully parses path into an in-memory dataset. chooser is invoked
	// only if the self user is ambiguous from the source data.
	Load(path string, chooser MyselfChooser) (*memdao.Dao, error)
}

// SingleCandidateChooser is a MyselfChooser that succeeds only when there is
// exactly one candidate, picking it automatically; otherwise it fails rather
// than guess. Useful for importers and callers that want a conservative
// default instead of always prompting.
func SingleCandidateChooser(candidates []model.User) (int, error) {
	if len(candidates) == 0 {
		return 0, apperr.New(apperr.Ambiguous, "no candidate users found for self")
	}
	if len(candidates) > 1 {
		return 0, apperr.New(apperr.Ambiguous, "self user is ambiguous among %d candidates", len(candidates))
	}
	return 0, nil
}
