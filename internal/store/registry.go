package store

import (
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/apperr"
)

// ShiftDatasetTime is intentionally unsupported on the persistent DAO: the
// reference design reserves this for a future bulk SQL update executed in a
// single transaction (see the open question on shift_dataset_time in
// SPEC_FULL.md). Call it on an in-memory DAO instead.
func (s *Store) ShiftDatasetTime(dsUUID uuid.UUID, hours int) error {
	return apperr.New(apperr.NotSupported, "shift_dataset_time is not supported on the persistent store; dataset %s", dsUUID)
}

// Registry is the process-wide DAO registry (SPEC_FULL.md §5): it maps an
// absolute database file path to a long-lived Store instance, so that
// opening the same database twice from different parts of the process
// yields the same connection. Mutation (load/close) is serialised
// through a single mutex; DAOs are disposed only by explicit Close.
type Registry struct {
	mu    sync.Mutex
	byKey map[string]*Store
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Store)}
}

// Load returns the Store for dbPath, opening and caching it if this is the
// first request for that path in the process.
func (r *Registry) Load(dbPath string) (*Store, error) {
	key, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "resolve database path %q", dbPath)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byKey[key]; ok {
		return s, nil
	}
	s, err := Open(key)
	if err != nil {
		return nil, err
	}
	r.byKey[key] = s
	return s, nil
}

// Close closes and evicts the Store for dbPath, if loaded.
func (r *Registry) Close(dbPath string) error {
	key, err := filepath.Abs(dbPath)
	if err != nil {
		return apperr.Wrap(apperr.InputShape, err, "resolve database path %q", dbPath)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byKey[key]
	if !ok {
		return nil
	}
	delete(r.byKey, key)
	return s.Close()
}

// CloseAll closes every Store currently held by the registry, e.g. during
// process shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, s := range r.byKey {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.byKey, key)
	}
	return firstErr
}
