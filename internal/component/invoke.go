package component

import (
	"context"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"

	"github.com/vk/componentry/internal/contract"
	"github.com/vk/componentry/internal/ctxlog"
	"github.com/vk/componentry/internal/errs"
)

// Call is one method invocation on an instance.
type Call struct {
	Desc   *Descriptor
	Method *contract.MethodSpec
	Layout *contract.Layout
	Target reflect.Value
	Args   []any
	Kwargs map[string]any
}

// Invoker decides what is checked around a call.
type Invoker interface {
	Invoke(ctx context.Context, c *Call) (any, error)
}

// InvokerFor returns the invoker for a validation level.
func InvokerFor(l ValidationLevel) Invoker {
	switch l {
	case Warn:
		return warnOnMismatch{}
	case Fail:
		return failOnMismatch{}
	default:
		return identity{}
	}
}

type identity struct{}

func (identity) Invoke(ctx context.Context, c *Call) (any, error) {
	return c.dispatch(ctx)
}

type warnOnMismatch struct{}

func (warnOnMismatch) Invoke(ctx context.Context, c *Call) (any, error) {
	if problems := c.Method.ValidateCallValues(c.Args, c.Kwargs); len(problems) > 0 {
		ctxlog.FromContext(ctx).Warn("Argument values do not match the contract.",
			"implementation", c.Desc.ImplID, "method", c.Method.Name, "problems", problems)
	}
	out, err := c.dispatch(ctx)
	if err != nil {
		return out, err
	}
	if problems := c.Method.ValidateReturnValue(out); len(problems) > 0 {
		ctxlog.FromContext(ctx).Warn("Return value does not match the contract.",
			"implementation", c.Desc.ImplID, "method", c.Method.Name, "problems", problems)
	}
	return out, nil
}

type failOnMismatch struct{}

func (failOnMismatch) Invoke(ctx context.Context, c *Call) (any, error) {
	subject := c.Desc.ImplID + "." + c.Method.Name
	if problems := c.Method.ValidateCallValues(c.Args, c.Kwargs); len(problems) > 0 {
		return nil, errs.NewTypeMismatch("component.Invoke", subject, problems)
	}
	out, err := c.dispatch(ctx)
	if err != nil {
		return out, err
	}
	if problems := c.Method.ValidateReturnValue(out); len(problems) > 0 {
		return nil, errs.NewTypeMismatch("component.Invoke", subject, problems)
	}
	return out, nil
}

// dispatch binds the arguments to the Go method and calls it.
func (c *Call) dispatch(ctx context.Context) (any, error) {
	in, err := c.arguments(ctx)
	if err != nil {
		return nil, errs.NewTypeMismatch("component.Invoke", c.Desc.ImplID+"."+c.Method.Name, []string{err.Error()})
	}
	out := c.Target.MethodByName(c.Method.Name).Call(in)
	if c.Layout.Err >= 0 {
		if e := out[c.Layout.Err]; !e.IsNil() {
			return nil, e.Interface().(error)
		}
	}
	if c.Layout.Value >= 0 {
		return out[c.Layout.Value].Interface(), nil
	}
	return nil, nil
}

func (c *Call) arguments(ctx context.Context) ([]reflect.Value, error) {
	l := c.Layout
	in := make([]reflect.Value, 0, len(l.Ordered)+2)
	if l.Context {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}

	kw := maps.Clone(c.Kwargs)
	if kw == nil {
		kw = map[string]any{}
	}
	for i, a := range c.Method.Args {
		var v any
		switch kv, named := kw[a.Name]; {
		case i < len(c.Args):
			if named {
				return nil, fmt.Errorf("got multiple values for argument %q", a.Name)
			}
			v = c.Args[i]
		case named:
			v = kv
			delete(kw, a.Name)
		case a.Optional:
			v = a.Default
		default:
			return nil, fmt.Errorf("missing required argument %q", a.Name)
		}
		rv, err := convert(v, l.Ordered[i])
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", a.Name, err)
		}
		in = append(in, rv)
	}

	if l.Keywords != nil {
		m := reflect.MakeMapWithSize(l.Keywords, len(kw))
		for k, v := range kw {
			rv, err := convert(v, l.Keywords.Elem())
			if err != nil {
				return nil, fmt.Errorf("keyword argument %q: %w", k, err)
			}
			m.SetMapIndex(reflect.ValueOf(k).Convert(l.Keywords.Key()), rv)
		}
		in = append(in, m)
	} else if len(kw) > 0 {
		return nil, fmt.Errorf("got an unexpected keyword argument %q", slices.Sorted(maps.Keys(kw))[0])
	}

	if len(c.Args) > len(c.Method.Args) {
		if l.Variadic == nil {
			return nil, fmt.Errorf("takes %d positional arguments but %d were given", len(c.Method.Args), len(c.Args))
		}
		for i, v := range c.Args[len(c.Method.Args):] {
			rv, err := convert(v, l.Variadic)
			if err != nil {
				return nil, fmt.Errorf("positional argument %d: %w", len(c.Method.Args)+i, err)
			}
			in = append(in, rv)
		}
	}
	return in, nil
}

// convert adapts v to t: direct assignment, address-of for pointer
// parameters and numeric conversion are supported.
func convert(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", t)
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case t.Kind() == reflect.Pointer && rv.Type().AssignableTo(t.Elem()):
		p := reflect.New(t.Elem())
		p.Elem().Set(rv)
		return p, nil
	case t.Kind() == reflect.Pointer && numeric(rv.Kind()) && numeric(t.Elem().Kind()):
		n, err := convertNumber(rv, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(n)
		return p, nil
	case numeric(rv.Kind()) && numeric(t.Kind()):
		return convertNumber(rv, t)
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

// convertNumber converts between numeric kinds only when the value
// survives unchanged: no overflow, no sign loss, no dropped fraction.
func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	lossy := fmt.Errorf("%v does not fit in %s", rv.Interface(), t)
	target := reflect.New(t).Elem()
	switch {
	case isInt(rv.Kind()):
		n := rv.Int()
		switch {
		case isInt(t.Kind()) && target.OverflowInt(n):
			return reflect.Value{}, lossy
		case isUint(t.Kind()) && (n < 0 || target.OverflowUint(uint64(n))):
			return reflect.Value{}, lossy
		}
	case isUint(rv.Kind()):
		n := rv.Uint()
		switch {
		case isInt(t.Kind()) && (n > math.MaxInt64 || target.OverflowInt(int64(n))):
			return reflect.Value{}, lossy
		case isUint(t.Kind()) && target.OverflowUint(n):
			return reflect.Value{}, lossy
		}
	default:
		f := rv.Float()
		switch {
		case isFloat(t.Kind()):
			if target.OverflowFloat(f) {
				return reflect.Value{}, lossy
			}
		case math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f):
			return reflect.Value{}, lossy
		case isInt(t.Kind()) && (f < math.MinInt64 || f >= math.MaxInt64 || target.OverflowInt(int64(f))):
			return reflect.Value{}, lossy
		case isUint(t.Kind()) && (f < 0 || f >= math.MaxUint64 || target.OverflowUint(uint64(f))):
			return reflect.Value{}, lossy
		}
	}
	return rv.Convert(t), nil
}

func isInt(k reflect.Kind) bool   { return k >= reflect.Int && k <= reflect.Int64 }
func isUint(k reflect.Kind) bool  { return k >= reflect.Uint && k <= reflect.Uintptr }
func isFloat(k reflect.Kind) bool { return k == reflect.Float32 || k == reflect.Float64 }

func numeric(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uintptr) || k == reflect.Float32 || k == reflect.Float64
}
