package contract

import (
	"fmt"
	"reflect"

	"github.com/vk/componentry/internal/errs"
)

// Layout maps a contract method onto a concrete Go method. It is computed
// once per implementation and reused for every call.
type Layout struct {
	// Context is true when the Go method takes a leading context.Context.
	Context bool
	// Ordered holds the Go parameter type of each ordered argument.
	Ordered []reflect.Type
	// Keywords is the map type capturing extra keyword arguments, or nil.
	Keywords reflect.Type
	// Variadic is the element type of the trailing variadic parameter, or nil.
	Variadic reflect.Type
	// Value is the index of the returned value, -1 when there is none.
	Value int
	// Err is the index of the trailing error result, -1 when there is none.
	Err int
}

// ValidateImplementationShape checks that implType has a method compatible
// with the method. Only types are inspected, no values.
func (m *MethodSpec) ValidateImplementationShape(implType reflect.Type) error {
	_, err := m.Layout(implType)
	return err
}

// Layout resolves the contract method against the method of the same name on implType.
func (m *MethodSpec) Layout(implType reflect.Type) (*Layout, error) {
	const op = "contract.ValidateImplementationShape"
	if implType == nil {
		return nil, errs.NewContract(op, m.Name, "implementation type is nil")
	}
	method, ok := implType.MethodByName(m.Name)
	if !ok {
		return nil, errs.NewContract(op, implType.String(), "does not define method %s", m.Name)
	}

	fn := method.Type
	offset := 1 // receiver
	if implType.Kind() == reflect.Interface {
		offset = 0
	}

	var problems []string
	l := &Layout{Value: -1, Err: -1}
	params := make([]reflect.Type, 0, fn.NumIn())
	for i := offset; i < fn.NumIn(); i++ {
		params = append(params, fn.In(i))
	}
	if len(params) > 0 && params[0] == contextType {
		l.Context = true
		params = params[1:]
	}

	want := len(m.Args)
	if m.KeywordRest != nil {
		want++
	}
	if m.PositionalRest != nil {
		want++
	}
	if len(params) != want {
		problems = append(problems, fmt.Sprintf("takes %d parameters, contract declares %d", len(params), want))
	} else {
		for i, a := range m.Args {
			if !compatible(a.Kind, a.Class, params[i]) {
				problems = append(problems, fmt.Sprintf("parameter %d (%s) has type %s, incompatible with %s", i+1, a.Name, params[i], a.expected()))
			}
			l.Ordered = append(l.Ordered, params[i])
		}
		next := len(m.Args)
		if m.KeywordRest != nil {
			pt := params[next]
			if pt.Kind() != reflect.Map || pt.Key().Kind() != reflect.String {
				problems = append(problems, fmt.Sprintf("keyword-rest %q needs a map[string]T parameter, got %s", m.KeywordRest.Name, pt))
			} else if !compatible(m.KeywordRest.Elem, nil, pt.Elem()) {
				problems = append(problems, fmt.Sprintf("keyword-rest %q has value type %s, incompatible with %s", m.KeywordRest.Name, pt.Elem(), m.KeywordRest.Elem))
			}
			l.Keywords = pt
			next++
		}
		if m.PositionalRest != nil {
			pt := params[next]
			if !fn.IsVariadic() {
				problems = append(problems, fmt.Sprintf("positional-rest %q needs a variadic parameter", m.PositionalRest.Name))
			} else if !compatible(m.PositionalRest.Elem, nil, pt.Elem()) {
				problems = append(problems, fmt.Sprintf("positional-rest %q has element type %s, incompatible with %s", m.PositionalRest.Name, pt.Elem(), m.PositionalRest.Elem))
			} else {
				l.Variadic = pt.Elem()
			}
		}
	}
	if m.PositionalRest == nil && fn.IsVariadic() {
		problems = append(problems, "is variadic but the contract declares no positional-rest block")
	}

	switch n := fn.NumOut(); {
	case n > 2:
		problems = append(problems, fmt.Sprintf("returns %d values, at most a value and an error are allowed", n))
	case n == 2:
		if fn.Out(1) != errorType {
			problems = append(problems, fmt.Sprintf("second result must be error, got %s", fn.Out(1)))
		}
		l.Value, l.Err = 0, 1
	case n == 1:
		if fn.Out(0) == errorType {
			l.Err = 0
		} else {
			l.Value = 0
		}
	}
	if m.Returns != nil {
		if l.Value < 0 {
			problems = append(problems, fmt.Sprintf("returns no value, contract declares %s", m.Returns.expected()))
		} else if out := fn.Out(l.Value); !compatible(m.Returns.Kind, m.Returns.Class, out) {
			problems = append(problems, fmt.Sprintf("result type %s is incompatible with %s", out, m.Returns.expected()))
		}
	}

	if len(problems) > 0 {
		return nil, errs.Aggregate(errs.Contract, op,
			fmt.Sprintf("%s.%s does not match the contract %s", implType, m.Name, m.Describe()), problems)
	}
	return l, nil
}

// compatible reports whether a Go type can carry values of kind.
func compatible(kind Kind, class reflect.Type, t reflect.Type) bool {
	if t.Kind() == reflect.Interface {
		if t.NumMethod() == 0 {
			return true
		}
		if kind == KindObject && class != nil {
			return class.Implements(t) || class.AssignableTo(t)
		}
		if c := canonical(kind); c != nil {
			return c.Implements(t)
		}
		return kind == KindAny || kind == KindObject
	}

	if t.Kind() == reflect.Pointer && kind != KindObject && kind != KindAny {
		return compatible(kind, class, t.Elem())
	}

	switch kind {
	case KindAny:
		return true
	case KindBool:
		return t.Kind() == reflect.Bool
	case KindInt:
		return isInteger(t.Kind())
	case KindFloat:
		return isFloat(t.Kind())
	case KindString:
		return t.Kind() == reflect.String
	case KindList:
		return t.Kind() == reflect.Slice || t.Kind() == reflect.Array
	case KindDict:
		return t.Kind() == reflect.Map
	case KindObject:
		if class == nil {
			return true
		}
		return class.AssignableTo(t)
	}
	return false
}
