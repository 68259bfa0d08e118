package registry

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/errs"
)

// Bind returns an instance of the implementation with implID.
func (r *Registry) Bind(ctx context.Context, implID string) (inst *component.Instance, err error) {
	defer func() { r.opts.Metrics.ObserveLookup("bind", err) }()

	d, err := r.enabled("registry.Bind", implID)
	if err != nil {
		return nil, err
	}
	return d.Instantiate(r)
}

// FindAndBind resolves a kvp or testing interface from params and returns
// an instance of the single matching implementation. Direct and factory
// interfaces are resolved through Bind and GetFromFactory instead.
func (r *Registry) FindAndBind(ctx context.Context, interfaceID string, params map[string]any) (inst *component.Instance, err error) {
	const op = "registry.FindAndBind"
	defer func() { r.opts.Metrics.ObserveLookup("find_and_bind", err) }()

	ri, ok := r.interfaces[interfaceID]
	if !ok {
		return nil, errs.NewLookupf(errs.ErrImplementationNotFound, op, interfaceID, "no such interface")
	}

	switch ri.Binding {
	case component.KVP:
		key, ok := kvpKeyFromParams(ri, params)
		d := r.kvp[key]
		if !ok || d == nil {
			return nil, errs.NewLookupf(errs.ErrImplementationNotFound, op, interfaceID, "no implementation registered for %s", describeParams(ri, params))
		}
		if !d.Enabled() {
			return nil, errs.NewLookupf(errs.ErrImplementationDisabled, op, interfaceID, "%s is disabled", d.ImplID)
		}
		return d.Instantiate(r)

	case component.Testing:
		matches, err := r.testMatches(ri, params, false)
		if err != nil {
			return nil, err
		}
		switch len(matches) {
		case 0:
			return nil, errs.NewLookupf(errs.ErrImplementationNotFound, op, interfaceID, "no enabled implementation accepts %v", params)
		case 1:
			return matches[0].Instantiate(r)
		default:
			ids := make([]string, len(matches))
			for i, d := range matches {
				ids[i] = d.ImplID
			}
			return nil, errs.NewLookupf(errs.ErrImplementationAmbiguous, op, interfaceID, "%s all accept %v", strings.Join(ids, ", "), params)
		}

	default:
		return nil, errs.NewLookupf(errs.ErrBindingMethod, op, interfaceID, "interface binds %s, use Bind or GetFromFactory", ri.Binding)
	}
}

// FindImplementations returns instances of every implementation of a kvp
// or testing interface matching params. For kvp interfaces params may name a
// subset of the registry keys; a nil params matches everything.
func (r *Registry) FindImplementations(ctx context.Context, interfaceID string, params map[string]any, includeDisabled bool) (out []*component.Instance, err error) {
	const op = "registry.FindImplementations"
	defer func() { r.opts.Metrics.ObserveLookup("find_implementations", err) }()

	ri, ok := r.interfaces[interfaceID]
	if !ok {
		return nil, errs.NewLookupf(errs.ErrImplementationNotFound, op, interfaceID, "no such interface")
	}

	var matches []*component.Descriptor
	switch ri.Binding {
	case component.KVP:
		for _, d := range r.byInterface[interfaceID] {
			if (includeDisabled || d.Enabled()) && kvpMatches(ri, d, params) {
				matches = append(matches, d)
			}
		}
	case component.Testing:
		if matches, err = r.testMatches(ri, params, includeDisabled); err != nil {
			return nil, err
		}
	default:
		return nil, errs.NewLookupf(errs.ErrBindingMethod, op, interfaceID, "interface binds %s, use Bind or GetFromFactory", ri.Binding)
	}

	out = make([]*component.Instance, 0, len(matches))
	for _, d := range matches {
		inst, err := d.Instantiate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// GetFromFactory binds the factory implementation factoryID and asks it for
// an instance. The produced value must belong to an implementation listing
// factoryID among its factory ids.
func (r *Registry) GetFromFactory(ctx context.Context, factoryID string, params map[string]any) (inst *component.Instance, err error) {
	const op = "registry.GetFromFactory"
	defer func() { r.opts.Metrics.ObserveLookup("get_from_factory", err) }()

	fd, err := r.enabled(op, factoryID)
	if err != nil {
		return nil, err
	}
	v, err := fd.Produce(ctx, r, params)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errs.NewLookupf(errs.ErrImplementationNotFound, op, factoryID, "factory produced nothing for %v", params)
	}

	rt := reflect.TypeOf(v)
	products := r.factories[factoryID]
	idx := slices.IndexFunc(products, func(d *component.Descriptor) bool { return d.Type() == rt })
	if idx < 0 {
		idx = slices.IndexFunc(products, func(d *component.Descriptor) bool { return rt.AssignableTo(d.Type()) })
	}
	if idx < 0 {
		return nil, errs.NewLookupf(errs.ErrImplementationNotFound, op, factoryID, "factory produced %s, which no implementation of this factory declares", rt)
	}
	d := products[idx]
	if !d.Enabled() {
		return nil, errs.NewLookupf(errs.ErrImplementationDisabled, op, factoryID, "%s is disabled", d.ImplID)
	}
	return d.Wrap(v)
}

// ImplementationIDs returns the ids of the implementations of an interface,
// sorted.
func (r *Registry) ImplementationIDs(interfaceID string, includeDisabled bool) []string {
	var ids []string
	for _, d := range r.byInterface[interfaceID] {
		if includeDisabled || d.Enabled() {
			ids = append(ids, d.ImplID)
		}
	}
	return ids
}

// RegistryValues returns the kvp registry values of an implementation.
func (r *Registry) RegistryValues(implID string) (map[string]string, error) {
	d, ok := r.byImpl[implID]
	if !ok {
		return nil, errs.NewLookup(errs.ErrImplementationNotFound, "registry.RegistryValues", implID)
	}
	out := make(map[string]string, len(d.RegistryValues))
	for k, v := range d.RegistryValues {
		out[k] = v
	}
	return out, nil
}

// FactoryImplementations returns the implementations a factory can produce.
func (r *Registry) FactoryImplementations(factoryID string, includeDisabled bool) []*component.Descriptor {
	var out []*component.Descriptor
	for _, d := range r.factories[factoryID] {
		if includeDisabled || d.Enabled() {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) enabled(op, implID string) (*component.Descriptor, error) {
	d, ok := r.byImpl[implID]
	if !ok {
		return nil, errs.NewLookup(errs.ErrImplementationNotFound, op, implID)
	}
	if !d.Enabled() {
		return nil, errs.NewLookup(errs.ErrImplementationDisabled, op, implID)
	}
	return d, nil
}

func (r *Registry) testMatches(ri *component.RegisteredInterface, params map[string]any, includeDisabled bool) ([]*component.Descriptor, error) {
	var matches []*component.Descriptor
	for _, d := range r.byInterface[ri.ID] {
		if !includeDisabled && !d.Enabled() {
			continue
		}
		ok, err := d.Test(r, params)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, d)
		}
	}
	return matches, nil
}

// kvpKeyFromParams restricts params to the registry keys. It reports false
// when a key is missing.
func kvpKeyFromParams(ri *component.RegisteredInterface, params map[string]any) (string, bool) {
	values := make(map[string]string, len(ri.RegistryKeys))
	for _, k := range ri.RegistryKeys {
		v, ok := params[k]
		if !ok {
			return "", false
		}
		values[k] = fmt.Sprint(v)
	}
	return kvpKey(ri, values), true
}

func kvpMatches(ri *component.RegisteredInterface, d *component.Descriptor, params map[string]any) bool {
	for _, k := range ri.RegistryKeys {
		if v, ok := params[k]; ok && fmt.Sprint(v) != d.RegistryValues[k] {
			return false
		}
	}
	return true
}

func describeParams(ri *component.RegisteredInterface, params map[string]any) string {
	parts := make([]string, 0, len(ri.RegistryKeys))
	for _, k := range ri.RegistryKeys {
		if v, ok := params[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		} else {
			parts = append(parts, k+"=<missing>")
		}
	}
	return strings.Join(parts, ", ")
}
