package contract

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ArgSpec types a single argument or return value.
type ArgSpec struct {
	Name     string
	Kind     Kind
	Optional bool
	// Default is the value an optional argument takes when omitted. A value
	// equal to Default is always valid, which is how "int or nil" is spelled.
	Default any
	// Class constrains KindObject values. Nil accepts any non-nil value.
	Class reflect.Type
	// Elem types the elements of rest blocks.
	Elem Kind
	// Type optionally refines the kind with a concrete cty type, e.g.
	// list(string). The zero value disables the refinement.
	Type cty.Type
}

// Arg returns a mandatory ArgSpec of the given kind.
func Arg(name string, kind Kind) ArgSpec {
	return ArgSpec{Name: name, Kind: kind}
}

func Any(name string) ArgSpec    { return Arg(name, KindAny) }
func Bool(name string) ArgSpec   { return Arg(name, KindBool) }
func Int(name string) ArgSpec    { return Arg(name, KindInt) }
func Float(name string) ArgSpec  { return Arg(name, KindFloat) }
func String(name string) ArgSpec { return Arg(name, KindString) }
func List(name string) ArgSpec   { return Arg(name, KindList) }
func Dict(name string) ArgSpec   { return Arg(name, KindDict) }

// Object returns an ArgSpec accepting values assignable to class, or
// implementing it when class is an interface type.
func Object(name string, class reflect.Type) ArgSpec {
	return ArgSpec{Name: name, Kind: KindObject, Class: class}
}

// Rest declares a positional-rest block whose elements have kind elem.
func Rest(name string, elem Kind) ArgSpec {
	return ArgSpec{Name: name, Kind: KindPositionalRest, Elem: elem}
}

// Keywords declares a keyword-rest block whose values have kind elem.
func Keywords(name string, elem Kind) ArgSpec {
	return ArgSpec{Name: name, Kind: KindKeywordRest, Elem: elem}
}

// Returns declares a return value of the given kind.
func Returns(kind Kind) ArgSpec {
	return ArgSpec{Name: "return", Kind: kind}
}

// WithDefault marks the argument optional with the given default.
func (a ArgSpec) WithDefault(v any) ArgSpec {
	a.Optional = true
	a.Default = v
	return a
}

// WithType refines the argument with a concrete cty type.
func (a ArgSpec) WithType(t cty.Type) ArgSpec {
	a.Type = t
	return a
}

// HasType reports whether the argument carries a concrete cty type beyond
// its kind.
func (a ArgSpec) HasType() bool {
	return !a.Type.Equals(cty.NilType) && !a.Type.Equals(cty.DynamicPseudoType)
}

// IsValid reports whether v is acceptable: either the default of an
// optional argument or a value matching the kind.
func (a ArgSpec) IsValid(v any) bool {
	v = indirect(a.Kind, v)
	if a.Optional && reflect.DeepEqual(v, a.Default) {
		return true
	}
	return a.Matches(v)
}

// Matches reports whether v belongs to the declared kind (and refined type).
func (a ArgSpec) Matches(v any) bool {
	v = indirect(a.Kind, v)
	if !matchKind(a.Kind, a.Class, v) {
		return false
	}
	if a.Kind.IsRest() {
		return matchRest(a, v)
	}
	return a.matchType(v)
}

func (a ArgSpec) matchType(v any) bool {
	if !a.HasType() {
		return true
	}
	val, err := ToCtyValue(v)
	if err != nil {
		return false
	}
	_, err = convert.Convert(val, a.Type)
	return err == nil
}

func matchRest(a ArgSpec, v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		for i := 0; i < rv.Len(); i++ {
			if !matchKind(a.Elem, nil, rv.Index(i).Interface()) {
				return false
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if !matchKind(a.Elem, nil, iter.Value().Interface()) {
				return false
			}
		}
	}
	return true
}

// indirect unwraps pointers for value kinds, so a *int carries an int or nil.
func indirect(kind Kind, v any) any {
	if v == nil || kind == KindObject || kind == KindAny {
		return v
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

// matchKind checks the dynamic Go type of v against kind.
func matchKind(kind Kind, class reflect.Type, v any) bool {
	if kind == KindAny {
		return true
	}
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	switch kind {
	case KindBool:
		return t.Kind() == reflect.Bool
	case KindInt:
		return isInteger(t.Kind())
	case KindFloat:
		// Integers are accepted where floats are declared.
		return isFloat(t.Kind()) || isInteger(t.Kind())
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
		if class.Kind() == reflect.Interface {
			return t.Implements(class)
		}
		return t.AssignableTo(class)
	case KindPositionalRest:
		return t.Kind() == reflect.Slice
	case KindKeywordRest:
		return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String
	}
	return false
}

// expected renders what the argument accepts, for mismatch messages.
func (a ArgSpec) expected() string {
	var s string
	switch {
	case a.Kind == KindObject && a.Class != nil:
		s = "object(" + a.Class.String() + ")"
	case a.HasType():
		s = a.Type.FriendlyName()
	default:
		s = a.Kind.String()
	}
	if a.Optional {
		s += fmt.Sprintf(" or %v", describeValue(a.Default))
	}
	return s
}

func (a ArgSpec) mismatch(v any) string {
	if a.Name == "return" {
		return fmt.Sprintf("return value: expected %s, got %s", a.expected(), typeName(v))
	}
	return fmt.Sprintf("argument %q: expected %s, got %s", a.Name, a.expected(), typeName(v))
}

// Describe renders the argument as it appears in a signature.
func (a ArgSpec) Describe() string {
	var b strings.Builder
	switch a.Kind {
	case KindPositionalRest:
		fmt.Fprintf(&b, "*%s: %s", a.Name, a.Elem)
		return b.String()
	case KindKeywordRest:
		fmt.Fprintf(&b, "**%s: %s", a.Name, a.Elem)
		return b.String()
	}
	b.WriteString(a.Name)
	b.WriteString(": ")
	switch {
	case a.Kind == KindObject && a.Class != nil:
		b.WriteString("object(" + a.Class.String() + ")")
	case a.HasType():
		b.WriteString(a.Type.FriendlyName())
	default:
		b.WriteString(a.Kind.String())
	}
	if a.Optional {
		fmt.Fprintf(&b, " = %v", describeValue(a.Default))
	}
	return b.String()
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}

func describeValue(v any) string {
	if v == nil {
		return "nil"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}
