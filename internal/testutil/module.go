package testutil

import (
	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/registry"
)

// SimpleModule is a test helper for easily creating a module that registers
// a fixed set of interfaces and implementations.
type SimpleModule struct {
	ModuleName      string
	Interfaces      []*component.RegisteredInterface
	Implementations []component.Implementation
}

// Name implements the registry.Module interface.
func (m *SimpleModule) Name() string { return m.ModuleName }

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(t *registry.Table) {
	t.Interface(m.Interfaces...)
	t.Implement(m.Implementations...)
}
