// Package filestore is a store.Store backed by a single YAML document on
// disk, so enable/disable decisions survive restarts without extra
// infrastructure.
//
// The document looks like:
//
//	components:
//	  - impl_id: storage.local
//	    interface_id: storage
//	    enabled: true
//
// Every write rewrites the whole file through a temporary file and a rename.
package filestore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vk/componentry/internal/store"
)

type document struct {
	Components []store.Component `yaml:"components"`
}

// Store reads and writes the YAML file at Path.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a store for path. The file is created on first write.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// List returns every record sorted by implementation id.
func (s *Store) List(ctx context.Context) ([]store.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return nil, err
	}
	return sorted(recs), nil
}

// Create adds records that do not exist yet.
func (s *Store) Create(ctx context.Context, records ...store.Component) error {
	return s.modify(func(recs map[string]store.Component) error {
		for _, r := range records {
			if _, ok := recs[r.ImplID]; ok {
				return fmt.Errorf("create %q: %w", r.ImplID, store.ErrExists)
			}
		}
		for _, r := range records {
			recs[r.ImplID] = r
		}
		return nil
	})
}

// Update overwrites existing records.
func (s *Store) Update(ctx context.Context, records ...store.Component) error {
	return s.modify(func(recs map[string]store.Component) error {
		for _, r := range records {
			if _, ok := recs[r.ImplID]; !ok {
				return fmt.Errorf("update %q: %w", r.ImplID, store.ErrNotFound)
			}
		}
		for _, r := range records {
			recs[r.ImplID] = r
		}
		return nil
	})
}

func (s *Store) modify(fn func(map[string]store.Component) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(recs); err != nil {
		return err
	}
	return s.write(recs)
}

func (s *Store) read() (map[string]store.Component, error) {
	recs := make(map[string]store.Component)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return recs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read component store %s: %w", s.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse component store %s: %w", s.path, err)
	}
	for _, c := range doc.Components {
		recs[c.ImplID] = c
	}
	return recs, nil
}

func (s *Store) write(recs map[string]store.Component) error {
	data, err := yaml.Marshal(document{Components: sorted(recs)})
	if err != nil {
		return fmt.Errorf("failed to encode component store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create component store directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write component store: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write component store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write component store: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func sorted(recs map[string]store.Component) []store.Component {
	out := make([]store.Component, 0, len(recs))
	for _, c := range recs {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b store.Component) int { return cmp.Compare(a.ImplID, b.ImplID) })
	return out
}
