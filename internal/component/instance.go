package component

import (
	"context"
	"reflect"

	"github.com/vk/componentry/internal/errs"
)

// Instance is a bound implementation. Calls go through the invoker chosen
// for the implementation's validation level.
type Instance struct {
	desc   *Descriptor
	value  any
	target reflect.Value
}

// Descriptor returns the descriptor the instance was bound from.
func (i *Instance) Descriptor() *Descriptor { return i.desc }

// Value returns the raw implementation value, bypassing validation.
func (i *Instance) Value() any { return i.value }

// Call invokes a contract method with positional arguments.
func (i *Instance) Call(ctx context.Context, method string, args ...any) (any, error) {
	return i.CallWithKeywords(ctx, method, nil, args...)
}

// CallWithKeywords invokes a contract method with positional and keyword
// arguments.
func (i *Instance) CallWithKeywords(ctx context.Context, method string, kwargs map[string]any, args ...any) (any, error) {
	spec, ok := i.desc.iface.Method(method)
	if !ok {
		return nil, errs.NewLookup(errs.ErrUnknownMethod, "component.Instance.Call", i.desc.InterfaceID+"."+method)
	}
	return i.desc.invoker.Invoke(ctx, &Call{
		Desc:   i.desc,
		Method: spec,
		Layout: i.desc.layouts[method],
		Target: i.target,
		Args:   args,
		Kwargs: kwargs,
	})
}
