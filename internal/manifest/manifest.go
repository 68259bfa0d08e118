// Package manifest reads interface declarations from HCL contract
// manifests. Module directories listed in the registry configuration are
// scanned for *.hcl files and every interface block becomes a registered
// interface:
//
//	interface "renderer" {
//	  binding          = "kvp"
//	  registry_keys    = ["service"]
//	  validation_level = "warn"
//	  extends          = ["base"]
//	  config           = { scheme = "file" }
//
//	  method "Render" {
//	    arg "request" { type = dict }
//	    arg "format"  {
//	      type    = string
//	      default = "image/png"
//	    }
//	    variadic "extra"   { type = any }
//	    keywords "options" { type = any }
//	    returns { type = string }
//	  }
//	}
package manifest

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/contract"
	"github.com/vk/componentry/internal/ctxlog"
	"github.com/vk/componentry/internal/errs"
)

type fileRoot struct {
	Interfaces []*interfaceBlock `hcl:"interface,block"`
	Remain     hcl.Body          `hcl:",remain"`
}

type interfaceBlock struct {
	ID              string         `hcl:"id,label"`
	Name            string         `hcl:"name,optional"`
	Binding         string         `hcl:"binding,optional"`
	RegistryKeys    []string       `hcl:"registry_keys,optional"`
	ValidationLevel string         `hcl:"validation_level,optional"`
	Extends         []string       `hcl:"extends,optional"`
	Config          *hcl.Attribute `hcl:"config,optional"`
	Methods         []*methodBlock `hcl:"method,block"`
}

type methodBlock struct {
	Name     string        `hcl:"name,label"`
	Args     []*argBlock   `hcl:"arg,block"`
	Variadic *argBlock     `hcl:"variadic,block"`
	Keywords *argBlock     `hcl:"keywords,block"`
	Returns  *returnsBlock `hcl:"returns,block"`
}

type argBlock struct {
	Name    string         `hcl:"name,label"`
	Type    *hcl.Attribute `hcl:"type,optional"`
	Default *hcl.Attribute `hcl:"default,optional"`
}

type returnsBlock struct {
	Type    *hcl.Attribute `hcl:"type,optional"`
	Default *hcl.Attribute `hcl:"default,optional"`
}

// Resolver looks up interfaces declared outside the manifest, for extends.
type Resolver func(id string) (*component.Interface, bool)

// ParseFile reads the manifest at path.
func ParseFile(ctx context.Context, path string, resolve Resolver) ([]*component.RegisteredInterface, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewConfig("manifest.ParseFile", path, "failed to read manifest: %v", err)
	}
	return Parse(ctx, src, path, resolve)
}

// Parse reads a manifest from src. Interfaces may extend interfaces declared
// earlier in the same manifest or known to resolve.
func Parse(ctx context.Context, src []byte, filename string, resolve Resolver) ([]*component.RegisteredInterface, error) {
	const op = "manifest.Parse"
	logger := ctxlog.FromContext(ctx)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errs.NewContract(op, filename, "failed to parse manifest: %s", diags.Error())
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, errs.NewContract(op, filename, "failed to decode manifest: %s", diags.Error())
	}

	local := make(map[string]*component.Interface, len(root.Interfaces))
	out := make([]*component.RegisteredInterface, 0, len(root.Interfaces))
	var problems []string
	for _, ib := range root.Interfaces {
		ri, err := buildInterface(ctx, ib, func(id string) (*component.Interface, bool) {
			if i, ok := local[id]; ok {
				return i, true
			}
			if resolve != nil {
				return resolve(id)
			}
			return nil, false
		})
		if err != nil {
			problems = append(problems, fmt.Sprintf("interface %q: %v", ib.ID, err))
			continue
		}
		if _, dup := local[ri.ID]; dup {
			problems = append(problems, fmt.Sprintf("interface %q is declared more than once", ri.ID))
			continue
		}
		local[ri.ID] = ri.Interface
		out = append(out, ri)
		logger.Debug("Parsed manifest interface.", "interface", ri.ID, "binding", ri.Binding, "methods", len(ri.Methods()))
	}
	if err := errs.Aggregate(errs.Contract, op, fmt.Sprintf("manifest %s has invalid interfaces", filename), problems); err != nil {
		return nil, err
	}
	return out, nil
}

func buildInterface(ctx context.Context, ib *interfaceBlock, resolve Resolver) (*component.RegisteredInterface, error) {
	binding, err := component.ParseBindingMethod(ib.Binding)
	if err != nil {
		return nil, err
	}
	level, err := component.ParseValidationLevel(ib.ValidationLevel)
	if err != nil {
		return nil, err
	}

	bases := make([]*component.Interface, 0, len(ib.Extends))
	for _, id := range ib.Extends {
		base, ok := resolve(id)
		if !ok {
			return nil, fmt.Errorf("extends unknown interface %q", id)
		}
		bases = append(bases, base)
	}

	config, err := configValue(ib.Config)
	if err != nil {
		return nil, err
	}

	methods := make([]*contract.MethodSpec, 0, len(ib.Methods))
	for _, mb := range ib.Methods {
		m, err := buildMethod(ctx, mb)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}

	name := ib.Name
	if name == "" {
		name = ib.ID
	}
	iface, err := component.NewInterface(name, bases, config, methods...)
	if err != nil {
		return nil, err
	}
	return component.Register(iface, ib.ID, binding,
		component.WithRegistryKeys(ib.RegistryKeys...),
		component.WithValidationLevel(level))
}

func buildMethod(ctx context.Context, mb *methodBlock) (*contract.MethodSpec, error) {
	declared := make([]contract.ArgSpec, 0, len(mb.Args)+2)
	for _, ab := range mb.Args {
		a, err := buildArg(ctx, ab.Name, ab.Type, ab.Default)
		if err != nil {
			return nil, fmt.Errorf("method %s, argument %q: %w", mb.Name, ab.Name, err)
		}
		declared = append(declared, a)
	}
	for _, rest := range []struct {
		block *argBlock
		ctor  func(string, contract.Kind) contract.ArgSpec
	}{{mb.Variadic, contract.Rest}, {mb.Keywords, contract.Keywords}} {
		if rest.block == nil {
			continue
		}
		elem, err := buildArg(ctx, rest.block.Name, rest.block.Type, nil)
		if err != nil {
			return nil, fmt.Errorf("method %s, rest block %q: %w", mb.Name, rest.block.Name, err)
		}
		declared = append(declared, rest.ctor(rest.block.Name, elem.Kind))
	}

	var returns *contract.ArgSpec
	if mb.Returns != nil {
		r, err := buildArg(ctx, "return", mb.Returns.Type, mb.Returns.Default)
		if err != nil {
			return nil, fmt.Errorf("method %s, returns: %w", mb.Name, err)
		}
		returns = &r
	}
	return contract.NewMethod(mb.Name, returns, declared...)
}

func buildArg(ctx context.Context, name string, typeAttr, defaultAttr *hcl.Attribute) (contract.ArgSpec, error) {
	var expr hcl.Expression
	if typeAttr != nil {
		expr = typeAttr.Expr
	}
	kind, ty, err := typeExpr(ctx, expr)
	if err != nil {
		return contract.ArgSpec{}, err
	}
	a := contract.Arg(name, kind)
	if !ty.Equals(cty.NilType) {
		a = a.WithType(ty)
	}
	if defaultAttr != nil {
		val, diags := defaultAttr.Expr.Value(nil)
		if diags.HasErrors() {
			return contract.ArgSpec{}, fmt.Errorf("invalid default: %s", diags.Error())
		}
		def, err := contract.FromCtyValue(val)
		if err != nil {
			return contract.ArgSpec{}, fmt.Errorf("invalid default: %w", err)
		}
		a = a.WithDefault(def)
	}
	return a, nil
}

func configValue(attr *hcl.Attribute) (map[string]any, error) {
	if attr == nil {
		return nil, nil
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid config: %s", diags.Error())
	}
	v, err := contract.FromCtyValue(val)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok && v != nil {
		return nil, fmt.Errorf("config must be an object, got %s", val.Type().FriendlyName())
	}
	return m, nil
}
