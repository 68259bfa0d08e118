package registry

import (
	"maps"
	"slices"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/errs"
)

// Module is the interface every component module implements to take part
// in discovery.
type Module interface {
	// Name is the dotted name the module is configured and scanned under.
	Name() string
	// Register declares the module's interfaces and implementations.
	Register(t *Table)
}

// Table collects the declarations of one module.
type Table struct {
	module          string
	interfaces      []*component.RegisteredInterface
	implementations []component.Implementation
}

// Interface declares registered interfaces.
func (t *Table) Interface(ris ...*component.RegisteredInterface) {
	t.interfaces = append(t.interfaces, ris...)
}

// Implement declares implementations. Their Module is set to the module
// being registered.
func (t *Table) Implement(impls ...component.Implementation) {
	for _, impl := range impls {
		impl.Module = t.module
		t.implementations = append(t.implementations, impl)
	}
}

// Catalog maps module names to modules. It replaces import-time discovery:
// a module is only loaded when the configuration names it.
type Catalog struct {
	modules map[string]Module
}

// NewCatalog builds a catalog. Two modules with the same name are a
// contract error.
func NewCatalog(mods ...Module) (*Catalog, error) {
	c := &Catalog{modules: make(map[string]Module, len(mods))}
	for _, m := range mods {
		if _, dup := c.modules[m.Name()]; dup {
			return nil, errs.NewContract("registry.NewCatalog", m.Name(), "module is registered more than once")
		}
		c.modules[m.Name()] = m
	}
	return c, nil
}

// Lookup returns the module registered under name.
func (c *Catalog) Lookup(name string) (Module, bool) {
	if c == nil {
		return nil, false
	}
	m, ok := c.modules[name]
	return m, ok
}

// Names returns the registered module names, sorted.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(c.modules))
}
