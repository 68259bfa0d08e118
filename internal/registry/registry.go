package registry

import (
	"cmp"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/memstore"
	"github.com/vk/componentry/internal/metric"
	"github.com/vk/componentry/internal/store"
)

// Settings serves values from configuration settings blocks.
type Settings interface {
	Get(section, key string) (string, bool)
}

// Options configures a Registry.
type Options struct {
	// SystemModules are always loaded; a missing one fails the load.
	SystemModules []string
	// ModulePaths are scanned recursively for *.hcl contract manifests.
	ModulePaths []string
	// Modules are loaded best-effort; a missing one is logged.
	Modules []string
	Catalog *Catalog
	// Store persists the enabled flags. Defaults to an in-memory store.
	Store                store.Store
	ValidationLevel      component.ValidationLevel
	InterfaceLevels      map[string]component.ValidationLevel
	ImplementationLevels map[string]component.ValidationLevel
	Settings             Settings
	Metrics              *metric.Metrics
}

// Registry indexes interfaces and implementations. After Load it is safe
// for concurrent lookups; Enable, Disable and Save are serialized by an
// internal mutex.
type Registry struct {
	id   uuid.UUID
	opts Options

	interfaces  map[string]*component.RegisteredInterface
	byImpl      map[string]*component.Descriptor
	byInterface map[string][]*component.Descriptor
	kvp         map[string]*component.Descriptor
	factories   map[string][]*component.Descriptor
	missing     []string

	mu        sync.Mutex
	loaded    bool
	persisted map[string]store.Component
}

// New creates an empty registry. Call Load to populate it.
func New(opts Options) *Registry {
	if opts.Store == nil {
		opts.Store = memstore.New()
	}
	return &Registry{
		id:          uuid.New(),
		opts:        opts,
		interfaces:  make(map[string]*component.RegisteredInterface),
		byImpl:      make(map[string]*component.Descriptor),
		byInterface: make(map[string][]*component.Descriptor),
		kvp:         make(map[string]*component.Descriptor),
		factories:   make(map[string][]*component.Descriptor),
		persisted:   make(map[string]store.Component),
	}
}

// ID identifies this registry generation. Every load and clone gets a new
// one.
func (r *Registry) ID() uuid.UUID { return r.id }

// Store returns the Component Store the registry reconciles with.
func (r *Registry) Store() store.Store { return r.opts.Store }

// MissingModules lists best-effort modules that could not be loaded.
func (r *Registry) MissingModules() []string { return slices.Clone(r.missing) }

// Interface returns the registered interface with id.
func (r *Registry) Interface(id string) (*component.RegisteredInterface, bool) {
	ri, ok := r.interfaces[id]
	return ri, ok
}

// Interfaces returns every registered interface sorted by id.
func (r *Registry) Interfaces() []*component.RegisteredInterface {
	out := make([]*component.RegisteredInterface, 0, len(r.interfaces))
	for _, id := range slices.Sorted(maps.Keys(r.interfaces)) {
		out = append(out, r.interfaces[id])
	}
	return out
}

// Descriptor returns the descriptor of an implementation.
func (r *Registry) Descriptor(implID string) (*component.Descriptor, bool) {
	d, ok := r.byImpl[implID]
	return d, ok
}

// Descriptors returns every implementation descriptor sorted by id.
func (r *Registry) Descriptors() []*component.Descriptor {
	out := make([]*component.Descriptor, 0, len(r.byImpl))
	for _, id := range slices.Sorted(maps.Keys(r.byImpl)) {
		out = append(out, r.byImpl[id])
	}
	return out
}

// Components returns the current state of every implementation as store
// records.
func (r *Registry) Components() []store.Component {
	out := make([]store.Component, 0, len(r.byImpl))
	for _, d := range r.Descriptors() {
		out = append(out, store.Component{ImplID: d.ImplID, InterfaceID: d.InterfaceID, Enabled: d.Enabled()})
	}
	return out
}

// Setting implements component.Env.
func (r *Registry) Setting(section, key string) (string, bool) {
	if r.opts.Settings == nil {
		return "", false
	}
	return r.opts.Settings.Get(section, key)
}

// Clone returns a deep copy. Descriptors are copied, so enabling or
// disabling on the clone leaves the original untouched.
func (r *Registry) Clone() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := New(r.opts)
	c.loaded = r.loaded
	c.missing = slices.Clone(r.missing)
	maps.Copy(c.interfaces, r.interfaces)
	maps.Copy(c.persisted, r.persisted)
	for id, d := range r.byImpl {
		c.byImpl[id] = d.Clone()
	}
	for iface, ds := range r.byInterface {
		c.byInterface[iface] = remap(c.byImpl, ds)
	}
	for fid, ds := range r.factories {
		c.factories[fid] = remap(c.byImpl, ds)
	}
	for key, d := range r.kvp {
		c.kvp[key] = c.byImpl[d.ImplID]
	}
	return c
}

func remap(byImpl map[string]*component.Descriptor, ds []*component.Descriptor) []*component.Descriptor {
	out := make([]*component.Descriptor, len(ds))
	for i, d := range ds {
		out[i] = byImpl[d.ImplID]
	}
	return out
}

// kvpKey builds the kvp index key from values in registry key order.
func kvpKey(ri *component.RegisteredInterface, values map[string]string) string {
	var b strings.Builder
	b.WriteString(ri.ID)
	for _, k := range ri.RegistryKeys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(values[k])
	}
	return b.String()
}

func sortDescriptors(ds []*component.Descriptor) {
	slices.SortFunc(ds, func(a, b *component.Descriptor) int { return cmp.Compare(a.ImplID, b.ImplID) })
}
