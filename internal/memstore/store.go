// Package memstore is an in-memory store.Store. Records live as long as the
// process, which suits tests and throwaway sessions.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/vk/componentry/internal/store"
)

// Store keeps records in a sync.Map keyed by implementation id. A mutex
// serializes multi-record writes so they are all-or-nothing; reads do not
// take it.
type Store struct {
	mu      sync.Mutex
	records sync.Map // impl id -> store.Component
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// List returns every record sorted by implementation id.
func (s *Store) List(ctx context.Context) ([]store.Component, error) {
	var out []store.Component
	s.records.Range(func(_, v any) bool {
		out = append(out, v.(store.Component))
		return true
	})
	slices.SortFunc(out, func(a, b store.Component) int { return cmp.Compare(a.ImplID, b.ImplID) })
	return out, nil
}

// Create adds records that do not exist yet.
func (s *Store) Create(ctx context.Context, records ...store.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, ok := s.records.Load(r.ImplID); ok {
			return fmt.Errorf("create %q: %w", r.ImplID, store.ErrExists)
		}
	}
	for _, r := range records {
		s.records.Store(r.ImplID, r)
	}
	return nil
}

// Update overwrites existing records.
func (s *Store) Update(ctx context.Context, records ...store.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, ok := s.records.Load(r.ImplID); !ok {
			return fmt.Errorf("update %q: %w", r.ImplID, store.ErrNotFound)
		}
	}
	for _, r := range records {
		s.records.Store(r.ImplID, r)
	}
	return nil
}
