package app

import (
	"context"
	"io"

	"github.com/vk/componentry/internal/config"
	"github.com/vk/componentry/internal/ctxlog"
	"github.com/vk/componentry/internal/errs"
	"github.com/vk/componentry/internal/filestore"
	"github.com/vk/componentry/internal/memstore"
	"github.com/vk/componentry/internal/natsstore"
	"github.com/vk/componentry/internal/store"
)

type storeOpener func(ctx context.Context, cfg config.StoreConfig, mem *memstore.Store) (store.Store, io.Closer, error)

// openedStore is a store together with the configuration it was opened
// from and the connection to release when it is replaced.
type openedStore struct {
	cfg    config.StoreConfig
	store  store.Store
	closer io.Closer
}

func (o *openedStore) close() error {
	if o == nil || o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// acquireStore returns the store in use when cfg is unchanged, otherwise
// a newly opened one that is not yet in use.
func (a *App) acquireStore(ctx context.Context, cfg config.StoreConfig) (*openedStore, error) {
	a.mu.Lock()
	cur := a.store
	a.mu.Unlock()
	if cur != nil && cur.cfg == cfg {
		ctxlog.FromContext(ctx).Debug("Reusing component store.", "backend", cfg.Backend)
		return cur, nil
	}
	st, closer, err := a.open(ctx, cfg, a.mem)
	if err != nil {
		return nil, err
	}
	return &openedStore{cfg: cfg, store: st, closer: closer}, nil
}

// commitStore makes st the store in use and closes the one it replaces.
func (a *App) commitStore(ctx context.Context, st *openedStore) {
	a.mu.Lock()
	prev := a.store
	a.store = st
	a.mu.Unlock()
	if prev == nil || prev == st {
		return
	}
	if err := prev.close(); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to close the replaced component store.", "backend", prev.cfg.Backend, "error", err)
	}
}

// releaseStore closes st after a failed load unless it is the store in use.
func (a *App) releaseStore(ctx context.Context, st *openedStore) {
	a.mu.Lock()
	inUse := a.store == st
	a.mu.Unlock()
	if inUse {
		return
	}
	if err := st.close(); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to close the component store.", "backend", st.cfg.Backend, "error", err)
	}
}

// openStore opens the component store the configuration selects. The
// memory backend is served by mem. The returned closer is nil for stores
// holding no connection.
func openStore(ctx context.Context, cfg config.StoreConfig, mem *memstore.Store) (store.Store, io.Closer, error) {
	logger := ctxlog.FromContext(ctx)
	switch cfg.Backend {
	case config.BackendFile:
		logger.Debug("Using file component store.", "path", cfg.Path)
		return filestore.New(cfg.Path), nil, nil
	case config.BackendNATS:
		logger.Debug("Connecting to NATS component store.", "url", cfg.URL, "bucket", cfg.Bucket)
		s, err := natsstore.Connect(ctx, cfg.URL, cfg.Bucket)
		if err != nil {
			return nil, nil, errs.NewConfig("app.openStore", cfg.URL, "failed to open nats component store: %v", err)
		}
		return s, s, nil
	case config.BackendMemory:
		logger.Debug("Using in-memory component store.")
		return mem, nil, nil
	default:
		return nil, nil, errs.NewConfig("app.openStore", cfg.Backend, "unknown store backend")
	}
}
