// Package location declares the location contracts and a resolver for
// file and in-memory resource addresses.
package location

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/contract"
	"github.com/vk/componentry/internal/registry"
)

const (
	SchemeFile   = "file"
	SchemeMemory = "memory"
)

// Location addresses a resource. Storage implementations are selected by
// its scheme.
type Location interface {
	Scheme() string
	Path() string
}

// Class is the reflect type of Location, for contract declarations.
var Class = reflect.TypeOf((*Location)(nil)).Elem()

// Path is a Location value.
type Path struct {
	scheme string
	path   string
}

// New returns a location with the given scheme and path.
func New(scheme, path string) Path { return Path{scheme: scheme, path: path} }

func (p Path) Scheme() string { return p.scheme }
func (p Path) Path() string   { return p.path }
func (p Path) String() string { return p.scheme + "://" + p.path }

// Contracts. The local path interface extends the base one.
var (
	Interface = component.MustInterface("Location", nil, nil,
		contract.MustMethod("Resolve", contract.String("uri")).Returning(contract.Object("return", Class)),
	)
	LocalPathInterface = component.MustInterface("LocalPath", []*component.Interface{Interface}, nil,
		contract.MustMethod("Abs", contract.Object("location", Class)).Returning(contract.Returns(contract.KindString)),
		contract.MustMethod("Join", contract.Object("location", Class), contract.Rest("elems", contract.KindString)).Returning(contract.Object("return", Class)),
	)

	Registered          = component.MustRegister(Interface, "location", component.Direct)
	LocalPathRegistered = component.MustRegister(LocalPathInterface, "location.localpath", component.Direct)
)

// Resolver resolves URIs into locations. Relative file paths are resolved
// against its root.
type Resolver struct {
	root string
}

// NewResolver returns a resolver rooted at root.
func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// Resolve parses "scheme://path" URIs. A bare path is a file location.
func (r *Resolver) Resolve(uri string) (Location, error) {
	scheme, path, found := strings.Cut(uri, "://")
	if !found {
		scheme, path = SchemeFile, uri
	}
	switch scheme {
	case SchemeFile:
		if path == "" {
			return nil, fmt.Errorf("empty path in %q", uri)
		}
		if !filepath.IsAbs(path) && r.root != "" {
			path = filepath.Join(r.root, path)
		}
		return New(SchemeFile, filepath.Clean(path)), nil
	case SchemeMemory:
		return New(SchemeMemory, path), nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q", scheme)
	}
}

// Abs returns the absolute filesystem path of a file location.
func (r *Resolver) Abs(l Location) (string, error) {
	if l.Scheme() != SchemeFile {
		return "", fmt.Errorf("%s location has no filesystem path", l.Scheme())
	}
	return filepath.Abs(l.Path())
}

// Join appends path elements to a location.
func (r *Resolver) Join(l Location, elems ...string) Location {
	if l.Scheme() == SchemeFile {
		return New(SchemeFile, filepath.Join(append([]string{l.Path()}, elems...)...))
	}
	return New(l.Scheme(), strings.Join(append([]string{strings.TrimSuffix(l.Path(), "/")}, elems...), "/"))
}

// Module registers the location contracts and the local resolver.
type Module struct{}

func (Module) Name() string { return "location" }

func (Module) Register(t *registry.Table) {
	t.Interface(Registered, LocalPathRegistered)
	t.Implement(component.Implementation{
		ID:        "location.local",
		Name:      "Local resolver",
		Interface: LocalPathRegistered,
		Type:      reflect.TypeOf((*Resolver)(nil)),
		New: func(env component.Env) (any, error) {
			root, _ := env.Setting("location", "root")
			return NewResolver(root), nil
		},
	})
}
