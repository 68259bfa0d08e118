package natsstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/componentry/internal/store"
	"github.com/vk/componentry/internal/store/storetest"
)

// fakeEntry implements jetstream.KeyValueEntry.
type fakeEntry struct {
	key   string
	value []byte
	rev   uint64
}

func (e fakeEntry) Bucket() string                  { return "test" }
func (e fakeEntry) Key() string                     { return e.key }
func (e fakeEntry) Value() []byte                   { return e.value }
func (e fakeEntry) Revision() uint64                { return e.rev }
func (e fakeEntry) Created() time.Time              { return time.Time{} }
func (e fakeEntry) Delta() uint64                   { return 0 }
func (e fakeEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

// fakeBucket mimics the JetStream KV semantics the store relies on.
type fakeBucket struct {
	mu      sync.Mutex
	rev     uint64
	entries map[string]fakeEntry
	failGet    error
	failDelete error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{entries: make(map[string]fakeEntry)}
}

func (b *fakeBucket) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failGet != nil {
		return nil, b.failGet
	}
	e, ok := b.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

func (b *fakeBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; ok {
		return 0, jetstream.ErrKeyExists
	}
	b.rev++
	b.entries[key] = fakeEntry{key: key, value: value, rev: b.rev}
	return b.rev, nil
}

func (b *fakeBucket) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok || e.rev != revision {
		return 0, errors.New("nats: wrong last sequence")
	}
	b.rev++
	b.entries[key] = fakeEntry{key: key, value: value, rev: b.rev}
	return b.rev, nil
}

func (b *fakeBucket) Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDelete != nil {
		return b.failDelete
	}
	delete(b.entries, key)
	return nil
}

func (b *fakeBucket) Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New(newFakeBucket()) })
}

func TestStore_IgnoresForeignKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newFakeBucket()
	_, err := b.Create(ctx, "version", []byte(`"1.0.0"`))
	require.NoError(t, err)
	s := New(b)
	require.NoError(t, s.Create(ctx, store.Component{ImplID: "storage.local", InterfaceID: "storage", Enabled: true}))

	got, err := s.List(ctx)

	require.NoError(t, err)
	assert.Equal(t, []store.Component{{ImplID: "storage.local", InterfaceID: "storage", Enabled: true}}, got)
}

func TestStore_GetFailureIsWrapped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newFakeBucket()
	s := New(b)
	require.NoError(t, s.Create(ctx, store.Component{ImplID: "a", InterfaceID: "x"}))
	b.failGet = errors.New("nats: timeout")

	_, err := s.List(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kv get component.a")
}

func TestStore_CreateReportsFailedRollback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newFakeBucket()
	s := New(b)
	require.NoError(t, s.Create(ctx, store.Component{ImplID: "b", InterfaceID: "x"}))
	b.failDelete = errors.New("nats: no responders")

	err := s.Create(ctx,
		store.Component{ImplID: "a", InterfaceID: "x"},
		store.Component{ImplID: "b", InterfaceID: "x"})

	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrExists)
	assert.Contains(t, err.Error(), "rollback component.a: nats: no responders")
}

func TestStore_CreateRollsBackOnConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newFakeBucket()
	s := New(b)
	require.NoError(t, s.Create(ctx, store.Component{ImplID: "b", InterfaceID: "x"}))

	err := s.Create(ctx,
		store.Component{ImplID: "a", InterfaceID: "x"},
		store.Component{ImplID: "b", InterfaceID: "x"})

	require.ErrorIs(t, err, store.ErrExists)
	got, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.Component{{ImplID: "b", InterfaceID: "x"}}, got)
}
