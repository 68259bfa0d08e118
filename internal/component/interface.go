package component

import (
	"fmt"
	"maps"
	"slices"

	"github.com/vk/componentry/internal/contract"
	"github.com/vk/componentry/internal/errs"
)

// Interface is a named set of method contracts and configuration values.
// Methods and configuration are merged from base interfaces; entries declared
// by the interface itself win, and earlier bases win over later ones.
type Interface struct {
	Name    string
	bases   []*Interface
	methods map[string]*contract.MethodSpec
	config  map[string]any
}

// NewInterface declares an interface.
func NewInterface(name string, bases []*Interface, config map[string]any, methods ...*contract.MethodSpec) (*Interface, error) {
	const op = "component.NewInterface"
	if name == "" {
		return nil, errs.NewContract(op, "", "interface name must not be empty")
	}

	i := &Interface{
		Name:    name,
		bases:   slices.Clone(bases),
		methods: make(map[string]*contract.MethodSpec),
		config:  make(map[string]any),
	}
	for idx := len(bases) - 1; idx >= 0; idx-- {
		b := bases[idx]
		if b == nil {
			return nil, errs.NewContract(op, name, "base interface %d is nil", idx)
		}
		maps.Copy(i.methods, b.methods)
		maps.Copy(i.config, b.config)
	}

	own := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		if m == nil {
			return nil, errs.NewContract(op, name, "nil method declaration")
		}
		if _, dup := own[m.Name]; dup {
			return nil, errs.NewContract(op, name, "method %s is declared more than once", m.Name)
		}
		own[m.Name] = struct{}{}
		i.methods[m.Name] = m
	}
	maps.Copy(i.config, config)
	return i, nil
}

// MustInterface is NewInterface for package-level declarations.
func MustInterface(name string, bases []*Interface, config map[string]any, methods ...*contract.MethodSpec) *Interface {
	i, err := NewInterface(name, bases, config, methods...)
	if err != nil {
		panic(err)
	}
	return i
}

// Method returns the merged contract for name.
func (i *Interface) Method(name string) (*contract.MethodSpec, bool) {
	m, ok := i.methods[name]
	return m, ok
}

// Methods returns every merged contract, sorted by name.
func (i *Interface) Methods() []*contract.MethodSpec {
	out := make([]*contract.MethodSpec, 0, len(i.methods))
	for _, name := range slices.Sorted(maps.Keys(i.methods)) {
		out = append(out, i.methods[name])
	}
	return out
}

// Config returns a copy of the merged configuration.
func (i *Interface) Config() map[string]any {
	return maps.Clone(i.config)
}

// Extends reports whether other is i or one of its ancestors.
func (i *Interface) Extends(other *Interface) bool {
	if i == other {
		return true
	}
	for _, b := range i.bases {
		if b.Extends(other) {
			return true
		}
	}
	return false
}

// RegisteredInterface is an Interface with a stable id and binding method.
type RegisteredInterface struct {
	*Interface
	ID              string
	Binding         BindingMethod
	RegistryKeys    []string
	ValidationLevel ValidationLevel
	// Validator checks the enabled implementations of the interface as a
	// whole. It runs on every registry load and save.
	Validator func(enabled []*Descriptor) error
}

// Option configures a RegisteredInterface.
type Option func(*RegisteredInterface)

// WithRegistryKeys sets the keys kvp implementations are indexed by.
func WithRegistryKeys(keys ...string) Option {
	return func(ri *RegisteredInterface) { ri.RegistryKeys = keys }
}

// WithValidationLevel sets the interface-level validation setting.
func WithValidationLevel(l ValidationLevel) Option {
	return func(ri *RegisteredInterface) { ri.ValidationLevel = l }
}

// WithValidator installs an interface-level validator.
func WithValidator(fn func(enabled []*Descriptor) error) Option {
	return func(ri *RegisteredInterface) { ri.Validator = fn }
}

// Register gives iface an id and binding method.
func Register(iface *Interface, id string, binding BindingMethod, opts ...Option) (*RegisteredInterface, error) {
	const op = "component.Register"
	if iface == nil {
		return nil, errs.NewContract(op, id, "interface is nil")
	}
	if id == "" {
		return nil, errs.NewContract(op, iface.Name, "interface id must not be empty")
	}
	if _, err := ParseBindingMethod(string(binding)); err != nil || binding == "" {
		return nil, errs.NewContract(op, id, "unknown binding method %q", binding)
	}

	ri := &RegisteredInterface{Interface: iface, ID: id, Binding: binding}
	for _, opt := range opts {
		opt(ri)
	}
	ri.RegistryKeys = slices.Clone(ri.RegistryKeys)

	switch {
	case binding == KVP && len(ri.RegistryKeys) == 0:
		return nil, errs.NewContract(op, id, "kvp binding requires registry keys")
	case binding != KVP && len(ri.RegistryKeys) > 0:
		return nil, errs.NewContract(op, id, "registry keys are only valid for kvp binding, got %s", binding)
	}
	seen := make(map[string]struct{}, len(ri.RegistryKeys))
	for _, k := range ri.RegistryKeys {
		if k == "" {
			return nil, errs.NewContract(op, id, "empty registry key")
		}
		if _, dup := seen[k]; dup {
			return nil, errs.NewContract(op, id, "registry key %q is declared more than once", k)
		}
		seen[k] = struct{}{}
	}
	return ri, nil
}

// MustRegister is Register for package-level declarations.
func MustRegister(iface *Interface, id string, binding BindingMethod, opts ...Option) *RegisteredInterface {
	ri, err := Register(iface, id, binding, opts...)
	if err != nil {
		panic(err)
	}
	return ri
}

// String identifies the interface in logs.
func (ri *RegisteredInterface) String() string {
	return fmt.Sprintf("%s(%s)", ri.ID, ri.Binding)
}
