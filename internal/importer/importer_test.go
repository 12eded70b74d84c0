package importer

import (
	"errors"
	"testing"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/model"
)

func TestSingleCandidateChooserPicksLoneCandidate(t *testing.T) {
	idx, err := SingleCandidateChooser([]model.User{{ID: 1}})
	if err != nil {
		t.Fatalf("chooser: %v", err)
	}
	if idx != 0 {
		t.Errorf("expected index 0, got %d", idx)
	}
}

func TestSingleCandidateChooserRejectsAmbiguity(t *testing.T) {
	_, err := SingleCandidateChooser([]model.User{{ID: 1}, {ID: 2}})
	if !errors.Is(err, apperr.Ambiguous) {
		t.Errorf("expected Ambiguous, got %v", err)
	}
}

func TestSingleCandidateChooserRejectsEmpty(t *testing.T) {
	_, err := SingleCandidateChooser(nil)
	if !errors.Is(err, apperr.Ambiguous) {
		t.Errorf("expected Ambiguous, got %v", err)
	}
}
