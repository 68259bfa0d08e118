package component

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync/atomic"

	"github.com/vk/componentry/internal/contract"
	"github.com/vk/componentry/internal/errs"
)

// Env is what constructors see of the running system.
type Env interface {
	// Bind returns an instance of a direct-bound implementation.
	Bind(ctx context.Context, implID string) (*Instance, error)
	// FindAndBind resolves a kvp or testing interface from params.
	FindAndBind(ctx context.Context, interfaceID string, params map[string]any) (*Instance, error)
	// Setting returns a value from a settings block of the configuration.
	Setting(section, key string) (string, bool)
}

// Tester is implemented by testing-bound implementations.
type Tester interface {
	Test(params map[string]any) bool
}

// Producer is implemented by factory implementations. Get returns a value of
// the factory-bound interface the factory serves.
type Producer interface {
	Get(ctx context.Context, params map[string]any) (any, error)
}

var (
	testerType   = reflect.TypeOf((*Tester)(nil)).Elem()
	producerType = reflect.TypeOf((*Producer)(nil)).Elem()
)

// Implementation is what a module declares for one implementation of an
// interface.
type Implementation struct {
	ID        string
	Name      string
	Interface *RegisteredInterface
	// InterfaceID names the interface when Interface is nil, e.g. for
	// interfaces declared in a manifest. The registry resolves it.
	InterfaceID string
	// Type is the Go type New returns, used for shape validation.
	Type reflect.Type
	New  func(env Env) (any, error)
	// RegistryValues are required for kvp interfaces and must cover exactly
	// the interface's registry keys.
	RegistryValues map[string]string
	// FactoryIDs lists the factory implementations able to produce this
	// factory-bound implementation.
	FactoryIDs      []string
	ValidationLevel ValidationLevel
	// Module is the name of the module that declared the implementation.
	Module string
}

// Descriptor is a validated implementation. The registry keeps exactly one
// per implementation id and references it from all its indices.
type Descriptor struct {
	ImplID         string
	InterfaceID    string
	Name           string
	Module         string
	Binding        BindingMethod
	RegistryValues map[string]string
	FactoryIDs     []string
	Level          ValidationLevel

	iface   *RegisteredInterface
	impl    Implementation
	layouts map[string]*contract.Layout
	invoker Invoker
	enabled atomic.Bool
}

// Implement validates impl against its interface and returns its
// descriptor, enabled. Every contract method is checked and all problems are
// reported together.
func Implement(impl Implementation, levels Levels) (*Descriptor, error) {
	const op = "component.Implement"
	ri := impl.Interface
	switch {
	case impl.ID == "":
		return nil, errs.NewContract(op, impl.Name, "implementation id must not be empty")
	case ri == nil:
		return nil, errs.NewContract(op, impl.ID, "implementation has no interface")
	case impl.Type == nil:
		return nil, errs.NewContract(op, impl.ID, "implementation has no type")
	case impl.New == nil:
		return nil, errs.NewContract(op, impl.ID, "implementation has no constructor")
	}

	var problems []string
	switch ri.Binding {
	case KVP:
		want := slices.Sorted(slices.Values(ri.RegistryKeys))
		got := slices.Sorted(maps.Keys(impl.RegistryValues))
		if !slices.Equal(want, got) {
			problems = append(problems, fmt.Sprintf("registry values %v do not match the registry keys %v of %s", got, want, ri.ID))
		}
	case Factory:
		if len(impl.FactoryIDs) == 0 {
			problems = append(problems, fmt.Sprintf("factory-bound interface %s requires factory ids", ri.ID))
		}
	case Testing:
		if !impl.Type.Implements(testerType) {
			problems = append(problems, fmt.Sprintf("testing-bound interface %s requires a Test(map[string]any) bool method", ri.ID))
		}
	}
	if ri.Binding != KVP && len(impl.RegistryValues) > 0 {
		problems = append(problems, fmt.Sprintf("registry values are only valid for kvp interfaces, %s binds %s", ri.ID, ri.Binding))
	}

	layouts := make(map[string]*contract.Layout)
	for _, m := range ri.Methods() {
		l, err := m.Layout(impl.Type)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		layouts[m.Name] = l
	}
	if err := errs.Aggregate(errs.Contract, op, fmt.Sprintf("implementation %q does not satisfy interface %q", impl.ID, ri.ID), problems); err != nil {
		return nil, err
	}

	if impl.Name == "" {
		impl.Name = impl.ID
	}
	levels.Implementation = impl.ValidationLevel
	if levels.Interface == LevelUnset {
		levels.Interface = ri.ValidationLevel
	}
	level := levels.Effective()

	d := &Descriptor{
		ImplID:         impl.ID,
		InterfaceID:    ri.ID,
		Name:           impl.Name,
		Module:         impl.Module,
		Binding:        ri.Binding,
		RegistryValues: maps.Clone(impl.RegistryValues),
		FactoryIDs:     slices.Clone(impl.FactoryIDs),
		Level:          level,
		iface:          ri,
		impl:           impl,
		layouts:        layouts,
		invoker:        InvokerFor(level),
	}
	d.enabled.Store(true)
	return d, nil
}

// Interface returns the registered interface the descriptor implements.
func (d *Descriptor) Interface() *RegisteredInterface { return d.iface }

// Type returns the Go type of the implementation.
func (d *Descriptor) Type() reflect.Type { return d.impl.Type }

// Enabled reports whether the implementation can be bound.
func (d *Descriptor) Enabled() bool { return d.enabled.Load() }

// SetEnabled flips the enabled flag.
func (d *Descriptor) SetEnabled(v bool) { d.enabled.Store(v) }

// Clone returns an independent copy. The enabled flag is copied, not shared.
func (d *Descriptor) Clone() *Descriptor {
	c := &Descriptor{
		ImplID:         d.ImplID,
		InterfaceID:    d.InterfaceID,
		Name:           d.Name,
		Module:         d.Module,
		Binding:        d.Binding,
		RegistryValues: maps.Clone(d.RegistryValues),
		FactoryIDs:     slices.Clone(d.FactoryIDs),
		Level:          d.Level,
		iface:          d.iface,
		impl:           d.impl,
		layouts:        d.layouts,
		invoker:        d.invoker,
	}
	c.enabled.Store(d.Enabled())
	return c
}

// Test runs the implementation's Test method on a fresh instance.
func (d *Descriptor) Test(env Env, params map[string]any) (bool, error) {
	v, err := d.construct(env)
	if err != nil {
		return false, err
	}
	t, ok := v.(Tester)
	if !ok {
		return false, errs.NewContract("component.Descriptor.Test", d.ImplID, "implementation is not a tester")
	}
	return t.Test(params), nil
}

// Instantiate constructs the implementation and wraps it for calls.
func (d *Descriptor) Instantiate(env Env) (*Instance, error) {
	v, err := d.construct(env)
	if err != nil {
		return nil, err
	}
	return d.Wrap(v)
}

// Wrap wraps an already constructed value, e.g. one returned by a factory.
func (d *Descriptor) Wrap(v any) (*Instance, error) {
	if v == nil {
		return nil, errs.NewContract("component.Descriptor.Wrap", d.ImplID, "constructor returned nil")
	}
	rt := reflect.TypeOf(v)
	if !rt.AssignableTo(d.impl.Type) {
		return nil, errs.NewContract("component.Descriptor.Wrap", d.ImplID, "constructor returned %s, declared %s", rt, d.impl.Type)
	}
	return &Instance{desc: d, value: v, target: reflect.ValueOf(v)}, nil
}

// Produce asks a factory implementation for a value.
func (d *Descriptor) Produce(ctx context.Context, env Env, params map[string]any) (any, error) {
	if !d.impl.Type.Implements(producerType) {
		return nil, errs.NewLookup(errs.ErrBindingMethod, "component.Descriptor.Produce", d.ImplID)
	}
	v, err := d.construct(env)
	if err != nil {
		return nil, err
	}
	return v.(Producer).Get(ctx, params)
}

func (d *Descriptor) construct(env Env) (any, error) {
	v, err := d.impl.New(env)
	if err != nil {
		return nil, errs.Wrap(err, "component", "construct", d.ImplID)
	}
	return v, nil
}

// String identifies the descriptor in logs.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s -> %s", d.ImplID, d.InterfaceID)
}
