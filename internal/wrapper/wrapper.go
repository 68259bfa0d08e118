// Package wrapper holds the resource and record wrappers: thin handles that
// find the components they need through the registry on first use.
package wrapper

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/modules/format"
	"github.com/vk/componentry/modules/location"
)

// Locator is the part of the registry the wrappers use.
type Locator interface {
	Bind(ctx context.Context, implID string) (*component.Instance, error)
	FindAndBind(ctx context.Context, interfaceID string, params map[string]any) (*component.Instance, error)
	GetFromFactory(ctx context.Context, factoryID string, params map[string]any) (*component.Instance, error)
}

// ResolverID is the location resolver implementation OpenResource binds.
const ResolverID = "location.local"

// ResourceWrapper gives access to a located resource. Its storage is found
// through the kvp binding on the location scheme.
type ResourceWrapper struct {
	locator  Locator
	location location.Location

	mu      sync.Mutex
	storage *component.Instance
}

// NewResource wraps loc.
func NewResource(l Locator, loc location.Location) *ResourceWrapper {
	return &ResourceWrapper{locator: l, location: loc}
}

// OpenResource resolves uri with the location resolver and wraps the result.
func OpenResource(ctx context.Context, l Locator, uri string) (*ResourceWrapper, error) {
	resolver, err := l.Bind(ctx, ResolverID)
	if err != nil {
		return nil, err
	}
	v, err := resolver.Call(ctx, "Resolve", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", uri, err)
	}
	loc, ok := v.(location.Location)
	if !ok {
		return nil, fmt.Errorf("resolver returned %T for %q", v, uri)
	}
	return NewResource(l, loc), nil
}

func (r *ResourceWrapper) Location() location.Location { return r.location }

// Storage returns the storage serving the resource's scheme.
func (r *ResourceWrapper) Storage(ctx context.Context) (*component.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storage != nil {
		return r.storage, nil
	}
	inst, err := r.locator.FindAndBind(ctx, "storage", map[string]any{"type": r.location.Scheme()})
	if err != nil {
		return nil, err
	}
	r.storage = inst
	return inst, nil
}

// Size returns the resource size. ok is false when the storage reports no
// size.
func (r *ResourceWrapper) Size(ctx context.Context) (size int64, ok bool, err error) {
	v, err := r.call(ctx, "GetSize")
	if err != nil || v == nil {
		return 0, false, err
	}
	switch n := v.(type) {
	case int:
		return int64(n), true, nil
	case int64:
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("storage returned size of type %T", v)
	}
}

func (r *ResourceWrapper) Exists(ctx context.Context) (bool, error) {
	v, err := r.call(ctx, "Exists")
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (r *ResourceWrapper) Read(ctx context.Context) (string, error) {
	v, err := r.call(ctx, "Read")
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (r *ResourceWrapper) call(ctx context.Context, method string) (any, error) {
	st, err := r.Storage(ctx)
	if err != nil {
		return nil, err
	}
	return st.Call(ctx, method, r.location)
}

// RecordWrapper decodes a resource into a record. The format is detected
// through the testing binding and the decoder comes from the decoder
// factory.
type RecordWrapper struct {
	*ResourceWrapper

	mu      sync.Mutex
	format  string
	decoder *component.Instance
}

// NewRecord wraps a resource. A non-empty formatName skips detection.
func NewRecord(res *ResourceWrapper, formatName string) *RecordWrapper {
	return &RecordWrapper{ResourceWrapper: res, format: formatName}
}

// Format returns the detected format name.
func (w *RecordWrapper) Format(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.detect(ctx)
}

func (w *RecordWrapper) detect(ctx context.Context) (string, error) {
	if w.format != "" {
		return w.format, nil
	}
	det, err := w.locator.FindAndBind(ctx, format.Detector.ID, map[string]any{"path": w.location.Path()})
	if err != nil {
		return "", err
	}
	v, err := det.Call(ctx, "Name")
	if err != nil {
		return "", err
	}
	name, _ := v.(string)
	w.format = name
	return name, nil
}

// Decoder returns the decoder for the record's format.
func (w *RecordWrapper) Decoder(ctx context.Context) (*component.Instance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.decoder != nil {
		return w.decoder, nil
	}
	name, err := w.detect(ctx)
	if err != nil {
		return nil, err
	}
	dec, err := w.locator.GetFromFactory(ctx, format.FactoryID, map[string]any{"format": name})
	if err != nil {
		return nil, err
	}
	w.decoder = dec
	return dec, nil
}

// Decode reads the resource and decodes it.
func (w *RecordWrapper) Decode(ctx context.Context) (any, error) {
	dec, err := w.Decoder(ctx)
	if err != nil {
		return nil, err
	}
	data, err := w.Read(ctx)
	if err != nil {
		return nil, err
	}
	return dec.Call(ctx, "Decode", data)
}
