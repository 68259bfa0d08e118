// Package store defines the Component Store, the persistent record of which
// implementations exist and whether each one is enabled.
//
// The registry reads it once per load and writes the enabled flags back on
// save. Backends live in the memstore, filestore and natsstore packages.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Update for records that were never created.
	ErrNotFound = errors.New("component record not found")
	// ErrExists is returned by Create for records that already exist.
	ErrExists = errors.New("component record already exists")
)

// Component is one persisted implementation record.
type Component struct {
	ImplID      string `json:"impl_id" yaml:"impl_id"`
	InterfaceID string `json:"interface_id" yaml:"interface_id"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
}

// Store persists component records.
type Store interface {
	// List returns every record, sorted by ImplID.
	List(ctx context.Context) ([]Component, error)
	// Create adds new records. It fails with ErrExists, without writing
	// anything, if any of them is already present.
	Create(ctx context.Context, records ...Component) error
	// Update overwrites existing records. It fails with ErrNotFound,
	// without writing anything, if any of them is missing.
	Update(ctx context.Context, records ...Component) error
}
