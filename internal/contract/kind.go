package contract

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Kind is the value category an ArgSpec accepts.
type Kind int

const (
	KindAny Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
	KindList
	KindDict
	KindPositionalRest
	KindKeywordRest
)

var kindNames = [...]string{
	KindAny:            "any",
	KindBool:           "bool",
	KindInt:            "int",
	KindFloat:          "float",
	KindString:         "string",
	KindObject:         "object",
	KindList:           "list",
	KindDict:           "dict",
	KindPositionalRest: "*args",
	KindKeywordRest:    "**kwargs",
}

// String returns the keyword used for the kind in manifests and messages.
func (k Kind) String() string {
	if k.Known() {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Known reports whether k is one of the declared kinds.
func (k Kind) Known() bool {
	return k >= KindAny && k <= KindKeywordRest
}

// IsRest reports whether k is a positional or keyword rest block.
func (k Kind) IsRest() bool {
	return k == KindPositionalRest || k == KindKeywordRest
}

// ParseKind converts a manifest keyword to a Kind. "number" is an alias for
// float and "map" for dict.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "any", "":
		return KindAny, nil
	case "bool":
		return KindBool, nil
	case "int":
		return KindInt, nil
	case "float", "number":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "object":
		return KindObject, nil
	case "list":
		return KindList, nil
	case "dict", "map":
		return KindDict, nil
	default:
		return KindAny, fmt.Errorf("unknown argument kind %q", s)
	}
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// canonical returns the Go type a value of kind k has when built from
// literals, or nil for kinds without one.
func canonical(k Kind) reflect.Type {
	switch k {
	case KindBool:
		return reflect.TypeOf(false)
	case KindInt:
		return reflect.TypeOf(0)
	case KindFloat:
		return reflect.TypeOf(0.0)
	case KindString:
		return reflect.TypeOf("")
	case KindList:
		return reflect.TypeOf([]any(nil))
	case KindDict:
		return reflect.TypeOf(map[string]any(nil))
	default:
		return nil
	}
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
