// Package storage declares the kvp-bound storage contract, keyed by the
// location scheme, with a local filesystem and an in-memory implementation.
package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"reflect"
	"sync"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/contract"
	"github.com/vk/componentry/internal/registry"
	"github.com/vk/componentry/modules/location"
)

var (
	Interface = component.MustInterface("Storage", nil, nil,
		contract.MustMethod("GetSize", contract.Object("location", location.Class)).Returning(contract.Returns(contract.KindInt).WithDefault(nil)),
		contract.MustMethod("Exists", contract.Object("location", location.Class)).Returning(contract.Returns(contract.KindBool)),
		contract.MustMethod("Read", contract.Object("location", location.Class)).Returning(contract.Returns(contract.KindString)),
	)

	Registered = component.MustRegister(Interface, "storage", component.KVP, component.WithRegistryKeys("type"))
)

// ErrNotExist is returned by Read for a missing resource.
var ErrNotExist = errors.New("resource does not exist")

// Local serves file locations from the filesystem.
type Local struct{}

// GetSize returns the size in bytes, or nil when the file does not exist.
func (Local) GetSize(ctx context.Context, l location.Location) (any, error) {
	info, err := os.Stat(l.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, nil
	}
	return info.Size(), nil
}

func (Local) Exists(ctx context.Context, l location.Location) (bool, error) {
	_, err := os.Stat(l.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (Local) Read(ctx context.Context, l location.Location) (string, error) {
	b, err := os.ReadFile(l.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotExist
	}
	return string(b), err
}

// Memory is an in-memory storage. One Memory is shared by every instance
// bound through the same Module.
type Memory struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewMemory returns an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]string)}
}

// Put stores content under path.
func (m *Memory) Put(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
}

func (m *Memory) GetSize(ctx context.Context, l location.Location) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[l.Path()]
	if !ok {
		return nil, nil
	}
	return len(content), nil
}

func (m *Memory) Exists(ctx context.Context, l location.Location) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[l.Path()]
	return ok, nil
}

func (m *Memory) Read(ctx context.Context, l location.Location) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[l.Path()]
	if !ok {
		return "", ErrNotExist
	}
	return content, nil
}

// Module registers the storage contract and implementations. Memory backs
// the memory implementation; a nil Memory gets a fresh one on Register.
type Module struct {
	Memory *Memory
}

func (m *Module) Name() string { return "storage" }

func (m *Module) Register(t *registry.Table) {
	if m.Memory == nil {
		m.Memory = NewMemory()
	}
	mem := m.Memory
	t.Interface(Registered)
	t.Implement(
		component.Implementation{
			ID:             "storage.local",
			Name:           "Local filesystem",
			Interface:      Registered,
			Type:           reflect.TypeOf(Local{}),
			New:            func(component.Env) (any, error) { return Local{}, nil },
			RegistryValues: map[string]string{"type": location.SchemeFile},
		},
		component.Implementation{
			ID:             "storage.memory",
			Name:           "In-memory",
			Interface:      Registered,
			Type:           reflect.TypeOf((*Memory)(nil)),
			New:            func(component.Env) (any, error) { return mem, nil },
			RegistryValues: map[string]string{"type": location.SchemeMemory},
		},
	)
}
