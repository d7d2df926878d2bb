package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
)

// SetBuilder produces a fresh Set. *Builder implements it.
type SetBuilder interface {
	Build(ctx context.Context) (*Set, error)
}

// Store holds the current Set. Readers never lock; Refresh swaps the whole
// set in one atomic store, so a reader sees either the old set or the new one.
type Store struct {
	builder SetBuilder
	current atomic.Pointer[Set]

	// serialises rebuilds; readers never take it
	refreshMu sync.Mutex
}

// NewStore creates an empty store. Call Refresh before the first Current.
func NewStore(builder SetBuilder) *Store {
	return &Store{builder: builder}
}

// Current returns the active set, or nil before the first successful build.
func (s *Store) Current() *Set {
	return s.current.Load()
}

// Get returns the active set or apperrors.ErrCatalogUnavailable.
func (s *Store) Get() (*Set, error) {
	set := s.current.Load()
	if set == nil {
		return nil, fmt.Errorf("%w: catalog has not been built", apperrors.ErrCatalogUnavailable)
	}
	return set, nil
}

// Refresh rebuilds the set. On failure the previous set stays active.
func (s *Store) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	set, err := s.builder.Build(ctx)
	if err != nil {
		return err
	}
	s.current.Store(set)
	return nil
}
