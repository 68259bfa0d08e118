package registry

import (
	"context"

	"github.com/vk/componentry/internal/ctxlog"
	"github.com/vk/componentry/internal/errs"
	"github.com/vk/componentry/internal/store"
)

// EnableImplementation marks an implementation enabled. Call Save to persist.
func (r *Registry) EnableImplementation(implID string) error {
	return r.setEnabled("registry.EnableImplementation", implID, true)
}

// DisableImplementation marks an implementation disabled. Call Save to
// persist.
func (r *Registry) DisableImplementation(implID string) error {
	return r.setEnabled("registry.DisableImplementation", implID, false)
}

func (r *Registry) setEnabled(op, implID string, v bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byImpl[implID]
	if !ok {
		return errs.NewLookup(errs.ErrImplementationNotFound, op, implID)
	}
	d.SetEnabled(v)
	return nil
}

// Save re-runs validation and persists every change since the last load or
// save in one pass: missing rows are created, changed enabled flags updated.
func (r *Registry) Save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	logger := ctxlog.FromContext(ctx)

	if err := r.validate(); err != nil {
		return err
	}

	var created, updated []store.Component
	for _, c := range r.Components() {
		prev, ok := r.persisted[c.ImplID]
		switch {
		case !ok:
			created = append(created, c)
		case prev.Enabled != c.Enabled:
			updated = append(updated, c)
		}
	}
	if len(created) > 0 {
		if err := r.opts.Store.Create(ctx, created...); err != nil {
			return errs.Wrap(err, "registry", "Save", "create components")
		}
	}
	if len(updated) > 0 {
		if err := r.opts.Store.Update(ctx, updated...); err != nil {
			return errs.Wrap(err, "registry", "Save", "update components")
		}
	}
	for _, c := range append(created, updated...) {
		r.persisted[c.ImplID] = c
	}

	r.recordCounts()
	logger.Info("Registry saved.", "created", len(created), "updated", len(updated))
	return nil
}
