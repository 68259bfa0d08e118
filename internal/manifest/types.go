package manifest

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/componentry/internal/contract"
	"github.com/vk/componentry/internal/ctxlog"
)

// typeExpr converts an HCL type expression such as `string`, `int` or
// `list(string)` into a contract kind and an optional cty refinement.
// cty.NilType means the kind alone decides.
func typeExpr(ctx context.Context, expr hcl.Expression) (contract.Kind, cty.Type, error) {
	logger := ctxlog.FromContext(ctx)

	switch v := expr.(type) {
	case nil:
		return contract.KindAny, cty.NilType, nil

	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) != 1 {
			return contract.KindAny, cty.NilType, fmt.Errorf("invalid type keyword: traversal path is not a single identifier")
		}
		kind, err := contract.ParseKind(v.Traversal.RootName())
		if err != nil {
			return contract.KindAny, cty.NilType, err
		}
		return kind, cty.NilType, nil

	case *hclsyntax.FunctionCallExpr:
		logger.Debug("Parsing type constructor.", "call", v.Name)
		ty, err := ctyType(v)
		if err != nil {
			return contract.KindAny, cty.NilType, err
		}
		return contract.KindOf(ty), ty, nil

	default:
		// An absent optional attribute decodes to a static null.
		if val, diags := expr.Value(nil); !diags.HasErrors() && val.IsNull() {
			return contract.KindAny, cty.NilType, nil
		}
		return contract.KindAny, cty.NilType, fmt.Errorf("unsupported expression for type definition: %T", v)
	}
}

// ctyType resolves a type expression nested inside a constructor.
func ctyType(expr hclsyntax.Expression) (cty.Type, error) {
	switch v := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) != 1 {
			return cty.DynamicPseudoType, fmt.Errorf("invalid type keyword: traversal path is not a single identifier")
		}
		switch name := v.Traversal.RootName(); name {
		case "string":
			return cty.String, nil
		case "number", "int", "float":
			return cty.Number, nil
		case "bool":
			return cty.Bool, nil
		case "any":
			return cty.DynamicPseudoType, nil
		default:
			return cty.DynamicPseudoType, fmt.Errorf("unknown primitive type %q", name)
		}

	case *hclsyntax.FunctionCallExpr:
		if v.Name == "object" {
			return objectType(v)
		}
		if len(v.Args) != 1 {
			return cty.DynamicPseudoType, fmt.Errorf("type constructors (list, map, set) require exactly one argument, got %d", len(v.Args))
		}
		elem, err := ctyType(v.Args[0])
		if err != nil {
			return cty.DynamicPseudoType, err
		}
		switch v.Name {
		case "list":
			return cty.List(elem), nil
		case "map":
			return cty.Map(elem), nil
		case "set":
			return cty.Set(elem), nil
		default:
			return cty.DynamicPseudoType, fmt.Errorf("unknown type constructor function %q", v.Name)
		}

	default:
		return cty.DynamicPseudoType, fmt.Errorf("unsupported expression for type definition: %T", v)
	}
}

func objectType(call *hclsyntax.FunctionCallExpr) (cty.Type, error) {
	if len(call.Args) != 1 {
		return cty.DynamicPseudoType, fmt.Errorf("the object() type constructor requires exactly one argument (the object definition), got %d", len(call.Args))
	}
	obj, ok := call.Args[0].(*hclsyntax.ObjectConsExpr)
	if !ok {
		return cty.DynamicPseudoType, fmt.Errorf("the argument to object() must be an object literal like { key = type, ... }, got %T", call.Args[0])
	}

	attrs := make(map[string]cty.Type, len(obj.Items))
	for _, item := range obj.Items {
		key := hcl.ExprAsKeyword(item.KeyExpr)
		if key == "" {
			if k, diags := item.KeyExpr.Value(nil); !diags.HasErrors() && k.Type().Equals(cty.String) && k.IsKnown() && !k.IsNull() {
				key = k.AsString()
			}
		}
		if key == "" {
			return cty.DynamicPseudoType, fmt.Errorf("invalid key in object type definition: keys must be simple identifiers or quoted strings")
		}
		ty, err := ctyType(item.ValueExpr)
		if err != nil {
			return cty.DynamicPseudoType, fmt.Errorf("in object attribute '%s': %w", key, err)
		}
		attrs[key] = ty
	}
	return cty.Object(attrs), nil
}
