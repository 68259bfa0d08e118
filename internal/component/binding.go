package component

import (
	"fmt"
	"strings"
)

// BindingMethod is the strategy used to resolve an interface to an
// implementation.
type BindingMethod string

const (
	// Direct implementations are bound by implementation id.
	Direct BindingMethod = "direct"
	// KVP implementations are selected by exact match on registry values.
	KVP BindingMethod = "kvp"
	// Factory implementations are produced by a factory implementation.
	Factory BindingMethod = "factory"
	// Testing implementations are selected by asking each candidate.
	Testing BindingMethod = "testing"
)

// ParseBindingMethod validates a binding method name.
func ParseBindingMethod(s string) (BindingMethod, error) {
	switch b := BindingMethod(strings.ToLower(strings.TrimSpace(s))); b {
	case Direct, KVP, Factory, Testing:
		return b, nil
	case "":
		return Direct, nil
	default:
		return "", fmt.Errorf("unknown binding method %q", s)
	}
}

// ValidationLevel controls runtime argument and return value checks.
type ValidationLevel int

const (
	// LevelUnset defers to the next level in precedence.
	LevelUnset ValidationLevel = iota
	Trust
	Warn
	Fail
)

// String returns the configuration keyword for the level.
func (l ValidationLevel) String() string {
	switch l {
	case Trust:
		return "trust"
	case Warn:
		return "warn"
	case Fail:
		return "fail"
	default:
		return "unset"
	}
}

// ParseValidationLevel parses "trust", "warn" or "fail". An empty string is
// LevelUnset.
func ParseValidationLevel(s string) (ValidationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return LevelUnset, nil
	case "trust":
		return Trust, nil
	case "warn":
		return Warn, nil
	case "fail":
		return Fail, nil
	default:
		return LevelUnset, fmt.Errorf("unknown validation level %q, expected trust, warn or fail", s)
	}
}

// Levels holds the validation settings that apply to one implementation.
type Levels struct {
	Implementation ValidationLevel
	Interface      ValidationLevel
	Global         ValidationLevel
}

// Effective resolves the precedence implementation > interface > global,
// falling back to Trust.
func (l Levels) Effective() ValidationLevel {
	for _, v := range []ValidationLevel{l.Implementation, l.Interface, l.Global} {
		if v != LevelUnset {
			return v
		}
	}
	return Trust
}
