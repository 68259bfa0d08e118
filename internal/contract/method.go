package contract

import (
	"fmt"
	"strings"

	"github.com/vk/componentry/internal/errs"
)

// MethodSpec is a named method contract.
type MethodSpec struct {
	Name           string
	Args           []ArgSpec
	PositionalRest *ArgSpec
	KeywordRest    *ArgSpec
	Returns        *ArgSpec
}

// ValidateCallShape checks a declared argument list: every kind is known,
// optional ordered arguments are trailing, at most one positional-rest which
// precedes an optional keyword-rest, keyword-rest comes last and names are
// unique.
func ValidateCallShape(method string, declared []ArgSpec) error {
	var problems []string
	seen := make(map[string]struct{}, len(declared))
	var optional, rest, keywords bool

	for i, a := range declared {
		if a.Name == "" {
			problems = append(problems, fmt.Sprintf("argument %d has no name", i))
		} else if _, dup := seen[a.Name]; dup {
			problems = append(problems, fmt.Sprintf("argument %q is declared more than once", a.Name))
		}
		seen[a.Name] = struct{}{}

		if !a.Kind.Known() {
			problems = append(problems, fmt.Sprintf("argument %q has unknown kind %s", a.Name, a.Kind))
			continue
		}

		switch a.Kind {
		case KindKeywordRest:
			if keywords {
				problems = append(problems, fmt.Sprintf("keyword-rest %q: only one keyword-rest block is allowed", a.Name))
			}
			keywords = true
		case KindPositionalRest:
			if rest {
				problems = append(problems, fmt.Sprintf("positional-rest %q: only one positional-rest block is allowed", a.Name))
			}
			if keywords {
				problems = append(problems, fmt.Sprintf("positional-rest %q must precede the keyword-rest block", a.Name))
			}
			rest = true
		default:
			if rest || keywords {
				problems = append(problems, fmt.Sprintf("argument %q follows a rest block", a.Name))
			}
			if a.Optional {
				optional = true
			} else if optional {
				problems = append(problems, fmt.Sprintf("mandatory argument %q follows an optional argument", a.Name))
			}
		}
	}

	return errs.Aggregate(errs.Contract, "contract.ValidateCallShape",
		fmt.Sprintf("method %q has an invalid signature", method), problems)
}

// NewMethod validates the declared arguments and builds a MethodSpec.
func NewMethod(name string, returns *ArgSpec, declared ...ArgSpec) (*MethodSpec, error) {
	if name == "" {
		return nil, errs.NewContract("contract.NewMethod", "", "method name must not be empty")
	}
	if err := ValidateCallShape(name, declared); err != nil {
		return nil, err
	}
	if returns != nil && (returns.Kind.IsRest() || !returns.Kind.Known()) {
		return nil, errs.NewContract("contract.NewMethod", name, "invalid return kind %s", returns.Kind)
	}

	m := &MethodSpec{Name: name}
	for _, a := range declared {
		a := a
		switch a.Kind {
		case KindPositionalRest:
			m.PositionalRest = &a
		case KindKeywordRest:
			m.KeywordRest = &a
		default:
			m.Args = append(m.Args, a)
		}
	}
	if returns != nil {
		r := *returns
		if r.Name == "" {
			r.Name = "return"
		}
		m.Returns = &r
	}
	return m, nil
}

// MustMethod is NewMethod for package-level contract declarations; it panics
// on an invalid declaration.
func MustMethod(name string, declared ...ArgSpec) *MethodSpec {
	m, err := NewMethod(name, nil, declared...)
	if err != nil {
		panic(err)
	}
	return m
}

// Returning returns a copy of m declaring the given return ArgSpec.
func (m *MethodSpec) Returning(r ArgSpec) *MethodSpec {
	out, err := NewMethod(m.Name, &r, m.Declared()...)
	if err != nil {
		panic(err)
	}
	return out
}

// Declared returns the argument list in declaration order, rest blocks last.
func (m *MethodSpec) Declared() []ArgSpec {
	out := append([]ArgSpec(nil), m.Args...)
	if m.PositionalRest != nil {
		out = append(out, *m.PositionalRest)
	}
	if m.KeywordRest != nil {
		out = append(out, *m.KeywordRest)
	}
	return out
}

// Arg looks up an ordered argument by name.
func (m *MethodSpec) Arg(name string) (ArgSpec, int, bool) {
	for i, a := range m.Args {
		if a.Name == name {
			return a, i, true
		}
	}
	return ArgSpec{}, -1, false
}

// Describe renders the method signature on one line.
func (m *MethodSpec) Describe() string {
	parts := make([]string, 0, len(m.Args)+2)
	for _, a := range m.Declared() {
		parts = append(parts, a.Describe())
	}
	s := fmt.Sprintf("%s(%s)", m.Name, strings.Join(parts, ", "))
	if m.Returns != nil {
		s += " -> " + m.Returns.expected()
	}
	return s
}

// ValidateCallValues checks call arguments against the method and returns one
// message per mismatch.
func (m *MethodSpec) ValidateCallValues(args []any, kwargs map[string]any) []string {
	var problems []string
	bound := make(map[string]struct{}, len(m.Args))

	for i, v := range args {
		if i < len(m.Args) {
			a := m.Args[i]
			bound[a.Name] = struct{}{}
			if !a.IsValid(v) {
				problems = append(problems, a.mismatch(v))
			}
			continue
		}
		if m.PositionalRest == nil {
			problems = append(problems, fmt.Sprintf("%s() takes %d positional arguments but %d were given", m.Name, len(m.Args), len(args)))
			break
		}
		if !matchKind(m.PositionalRest.Elem, nil, v) {
			problems = append(problems, fmt.Sprintf("argument %s[%d]: expected %s, got %s", m.PositionalRest.Name, i-len(m.Args), m.PositionalRest.Elem, typeName(v)))
		}
	}

	for _, name := range sortedKeys(kwargs) {
		v := kwargs[name]
		if a, _, ok := m.Arg(name); ok {
			if _, dup := bound[name]; dup {
				problems = append(problems, fmt.Sprintf("%s() got multiple values for argument %q", m.Name, name))
				continue
			}
			bound[name] = struct{}{}
			if !a.IsValid(v) {
				problems = append(problems, a.mismatch(v))
			}
			continue
		}
		if m.KeywordRest == nil {
			problems = append(problems, fmt.Sprintf("%s() got an unexpected keyword argument %q", m.Name, name))
			continue
		}
		if !matchKind(m.KeywordRest.Elem, nil, v) {
			problems = append(problems, fmt.Sprintf("argument %s[%q]: expected %s, got %s", m.KeywordRest.Name, name, m.KeywordRest.Elem, typeName(v)))
		}
	}

	for _, a := range m.Args {
		if _, ok := bound[a.Name]; !ok && !a.Optional {
			problems = append(problems, fmt.Sprintf("%s() missing required argument %q", m.Name, a.Name))
		}
	}
	return problems
}

// ValidateReturnValue checks a returned value against the declared return.
func (m *MethodSpec) ValidateReturnValue(v any) []string {
	if m.Returns == nil || m.Returns.IsValid(v) {
		return nil
	}
	return []string{m.Returns.mismatch(v)}
}
