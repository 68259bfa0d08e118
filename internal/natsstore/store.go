// Package natsstore is a store.Store backed by a NATS JetStream key-value
// bucket, for deployments where several processes share one set of
// enable/disable decisions.
//
// Each record is a JSON value under the key "component.<impl id>". Updates
// use the entry revision so concurrent writers cannot silently overwrite
// each other.
package natsstore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/vk/componentry/internal/ctxlog"
	"github.com/vk/componentry/internal/store"
)

const keyPrefix = "component."

// Bucket is the subset of jetstream.KeyValue the store uses.
type Bucket interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
	Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error)
}

// Store keeps records in a Bucket.
type Store struct {
	bucket  Bucket
	timeout time.Duration
	conn    *nats.Conn
}

// New wraps an existing bucket.
func New(bucket Bucket) *Store {
	return &Store{bucket: bucket, timeout: 5 * time.Second}
}

// Connect dials url and opens, or creates, the named bucket.
func Connect(ctx context.Context, url, bucket string) (*Store, error) {
	nc, err := nats.Connect(url, nats.Name("componentry"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open JetStream: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Component enable/disable state",
			History:     5,
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create/get KV bucket %s: %w", bucket, err)
	}

	s := New(kv)
	s.conn = nc
	return s, nil
}

// Close drains the connection opened by Connect.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// List returns every record sorted by implementation id.
func (s *Store) List(ctx context.Context) ([]store.Component, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	keys, err := s.bucket.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list KV keys: %w", err)
	}

	var out []store.Component
	for _, key := range keys {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		c, _, err := s.get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue // deleted between Keys and Get
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b store.Component) int { return cmp.Compare(a.ImplID, b.ImplID) })
	return out, nil
}

// Create adds records that do not exist yet. Records created before a
// conflict is detected are removed again.
func (s *Store) Create(ctx context.Context, records ...store.Component) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var created []string
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %q: %w", r.ImplID, err)
		}
		key := keyPrefix + r.ImplID
		if _, err := s.bucket.Create(ctx, key, data); err != nil {
			if errors.Is(err, jetstream.ErrKeyExists) {
				err = fmt.Errorf("create %q: %w", r.ImplID, store.ErrExists)
			} else {
				err = fmt.Errorf("kv create %s: %w", key, err)
			}
			return errors.Join(err, s.rollback(ctx, created))
		}
		created = append(created, key)
	}
	return nil
}

// rollback deletes keys written by a failed Create. Keys that could not
// be deleted are logged and reported.
func (s *Store) rollback(ctx context.Context, keys []string) error {
	var errList []error
	for _, k := range keys {
		if err := s.bucket.Delete(ctx, k); err != nil {
			ctxlog.FromContext(ctx).Error("Failed to roll back component record.", "key", k, "error", err)
			errList = append(errList, fmt.Errorf("rollback %s: %w", k, err))
		}
	}
	return errors.Join(errList...)
}

// Update overwrites existing records. All records are checked for existence
// before any is written.
func (s *Store) Update(ctx context.Context, records ...store.Component) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	revisions := make([]uint64, len(records))
	for i, r := range records {
		_, rev, err := s.get(ctx, keyPrefix+r.ImplID)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("update %q: %w", r.ImplID, store.ErrNotFound)
		}
		if err != nil {
			return err
		}
		revisions[i] = rev
	}
	for i, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %q: %w", r.ImplID, err)
		}
		key := keyPrefix + r.ImplID
		if _, err := s.bucket.Update(ctx, key, data, revisions[i]); err != nil {
			return fmt.Errorf("kv update %s: %w", key, err)
		}
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (store.Component, uint64, error) {
	entry, err := s.bucket.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return store.Component{}, 0, err
		}
		return store.Component{}, 0, fmt.Errorf("kv get %s: %w", key, err)
	}
	var c store.Component
	if err := json.Unmarshal(entry.Value(), &c); err != nil {
		return store.Component{}, 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return c, entry.Revision(), nil
}
