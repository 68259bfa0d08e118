package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/ctxlog"
	"github.com/vk/componentry/internal/errs"
	"github.com/vk/componentry/internal/fsutil"
	"github.com/vk/componentry/internal/manifest"
	"github.com/vk/componentry/internal/store"
)

// Load runs discovery and indexing. It succeeds at most once per registry;
// a failed Load leaves the registry empty so it can be retried.
func (r *Registry) Load(ctx context.Context) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return errs.NewInternal("registry.Load", fmt.Errorf("registry %s is already loaded", r.id))
	}

	ctx, logger := ctxlog.With(ctx, "registry", r.id.String())
	start := time.Now()
	defer func() {
		r.opts.Metrics.ObserveLoad(time.Since(start), err)
		if err != nil {
			r.clear()
			logger.Error("Registry load failed.", "error", err)
		}
	}()

	tables, err := r.resolveModules(ctx)
	if err != nil {
		return err
	}
	descriptors, err := r.collect(tables)
	if err != nil {
		return err
	}
	if err := r.index(ctx, descriptors); err != nil {
		return err
	}
	if err := r.reconcile(ctx); err != nil {
		return err
	}
	if err := r.validate(); err != nil {
		return err
	}

	r.loaded = true
	r.recordCounts()
	logger.Info("Registry loaded.",
		"interfaces", len(r.interfaces),
		"implementations", len(r.byImpl),
		"missing_modules", r.missing,
		"duration", time.Since(start))
	return nil
}

// resolveModules runs every module's Register and parses the manifests.
func (r *Registry) resolveModules(ctx context.Context) ([]*Table, error) {
	const op = "registry.Load"
	logger := ctxlog.FromContext(ctx)

	var tables []*Table
	loaded := make(map[string]bool)
	load := func(name string) bool {
		if loaded[name] {
			return true
		}
		m, ok := r.opts.Catalog.Lookup(name)
		if !ok {
			return false
		}
		t := &Table{module: name}
		m.Register(t)
		tables = append(tables, t)
		loaded[name] = true
		logger.Debug("Loaded module.", "module", name, "interfaces", len(t.interfaces), "implementations", len(t.implementations))
		return true
	}

	var problems []string
	for _, name := range r.opts.SystemModules {
		if !load(name) {
			problems = append(problems, fmt.Sprintf("system module %q is not registered", name))
		}
	}
	if err := errs.Aggregate(errs.Config, op, "system modules could not be loaded", problems); err != nil {
		return nil, err
	}

	for _, name := range r.opts.Modules {
		if !load(name) {
			logger.Warn("Module could not be loaded, continuing without it.", "module", name)
			r.missing = append(r.missing, name)
		}
	}

	resolve := func(id string) (*component.Interface, bool) {
		for _, t := range tables {
			for _, ri := range t.interfaces {
				if ri.ID == id {
					return ri.Interface, true
				}
			}
		}
		return nil, false
	}
	for _, dir := range r.opts.ModulePaths {
		files, err := fsutil.FindFilesByExtension(dir, ".hcl")
		if err != nil {
			return nil, errs.NewConfig(op, dir, "failed to scan module path: %v", err)
		}
		for _, file := range files {
			name, err := fsutil.ModuleName(dir, file)
			if err != nil {
				return nil, errs.NewConfig(op, file, "failed to derive module name: %v", err)
			}
			ris, err := manifest.ParseFile(ctx, file, resolve)
			if err != nil {
				return nil, err
			}
			tables = append(tables, &Table{module: name, interfaces: ris})
			logger.Debug("Loaded contract manifest.", "module", name, "path", file, "interfaces", len(ris))
			load(name)
		}
	}
	return tables, nil
}

// collect gathers interfaces and validates implementations.
func (r *Registry) collect(tables []*Table) ([]*component.Descriptor, error) {
	var problems []string
	owner := make(map[string]string)
	for _, t := range tables {
		for _, ri := range t.interfaces {
			if existing, ok := r.interfaces[ri.ID]; ok && existing != ri {
				problems = append(problems, fmt.Sprintf("interface %q is declared by module %q and again by module %q", ri.ID, owner[ri.ID], t.module))
				continue
			}
			r.interfaces[ri.ID] = ri
			owner[ri.ID] = t.module
		}
	}

	var descriptors []*component.Descriptor
	seen := make(map[string]string)
	for _, t := range tables {
		for _, impl := range t.implementations {
			if prev, dup := seen[impl.ID]; dup {
				problems = append(problems, fmt.Sprintf("implementation %q is declared by module %q and again by module %q", impl.ID, prev, t.module))
				continue
			}
			seen[impl.ID] = t.module

			ifaceID := impl.InterfaceID
			if impl.Interface != nil {
				ifaceID = impl.Interface.ID
			}
			ri, ok := r.interfaces[ifaceID]
			if !ok || (impl.Interface != nil && impl.Interface != ri) {
				problems = append(problems, fmt.Sprintf("implementation %q references interface %q, which no loaded module registers", impl.ID, ifaceID))
				continue
			}
			impl.Interface = ri
			if l, ok := r.opts.ImplementationLevels[impl.ID]; ok && l != component.LevelUnset {
				impl.ValidationLevel = l
			}

			d, err := component.Implement(impl, component.Levels{
				Interface: r.opts.InterfaceLevels[ri.ID],
				Global:    r.opts.ValidationLevel,
			})
			if err != nil {
				problems = append(problems, err.Error())
				continue
			}
			descriptors = append(descriptors, d)
		}
	}
	if err := errs.Aggregate(errs.Contract, "registry.Load", "contract violations found", problems); err != nil {
		return nil, err
	}
	return descriptors, nil
}

// index builds the lookup indices. All of them share the descriptors.
func (r *Registry) index(ctx context.Context, descriptors []*component.Descriptor) error {
	var problems []string
	for _, d := range descriptors {
		r.byImpl[d.ImplID] = d
		r.byInterface[d.InterfaceID] = append(r.byInterface[d.InterfaceID], d)

		switch d.Binding {
		case component.KVP:
			key := kvpKey(d.Interface(), d.RegistryValues)
			if other, ok := r.kvp[key]; ok {
				problems = append(problems, fmt.Sprintf("implementations %q and %q both claim registry values %v of interface %q", other.ImplID, d.ImplID, d.RegistryValues, d.InterfaceID))
				continue
			}
			r.kvp[key] = d
		case component.Factory:
			for _, fid := range d.FactoryIDs {
				r.factories[fid] = append(r.factories[fid], d)
			}
		}
	}
	for _, ds := range r.byInterface {
		sortDescriptors(ds)
	}
	for fid, ds := range r.factories {
		sortDescriptors(ds)
		if _, ok := r.byImpl[fid]; !ok {
			ctxlog.FromContext(ctx).Warn("Factory implementation is not registered.", "factory", fid, "products", len(ds))
		}
	}
	return errs.Aggregate(errs.Contract, "registry.Load", "registry values collide", problems)
}

// reconcile copies the persisted enabled flags and records new
// implementations as disabled.
func (r *Registry) reconcile(ctx context.Context) error {
	const op = "registry.Load"
	logger := ctxlog.FromContext(ctx)

	rows, err := r.opts.Store.List(ctx)
	if err != nil {
		return errs.NewInternal(op, errs.Wrap(err, "registry", "Load", "list components"))
	}
	for _, row := range rows {
		r.persisted[row.ImplID] = row
	}

	var created []store.Component
	for _, d := range r.Descriptors() {
		if row, ok := r.persisted[d.ImplID]; ok {
			d.SetEnabled(row.Enabled)
			continue
		}
		d.SetEnabled(false)
		created = append(created, store.Component{ImplID: d.ImplID, InterfaceID: d.InterfaceID, Enabled: false})
	}
	if len(created) > 0 {
		if err := r.opts.Store.Create(ctx, created...); err != nil {
			return errs.NewInternal(op, errs.Wrap(err, "registry", "Load", "create components"))
		}
		for _, c := range created {
			r.persisted[c.ImplID] = c
			logger.Info("New implementation recorded as disabled.", "implementation", c.ImplID, "interface", c.InterfaceID)
		}
	}

	var problems []string
	for _, row := range rows {
		if _, ok := r.byImpl[row.ImplID]; ok || !row.Enabled {
			continue
		}
		if len(r.missing) > 0 {
			problems = append(problems, fmt.Sprintf("enabled implementation %q is not available; modules that failed to load: %v", row.ImplID, r.missing))
			continue
		}
		logger.Warn("Enabled implementation is no longer provided by any module.", "implementation", row.ImplID, "interface", row.InterfaceID)
	}
	return errs.Aggregate(errs.Config, op, "enabled implementations are missing", problems)
}

// validate runs the interface-level validators against the enabled
// implementations.
func (r *Registry) validate() error {
	var problems []string
	for _, ri := range r.Interfaces() {
		if ri.Validator == nil {
			continue
		}
		var enabled []*component.Descriptor
		for _, d := range r.byInterface[ri.ID] {
			if d.Enabled() {
				enabled = append(enabled, d)
			}
		}
		if err := ri.Validator(enabled); err != nil {
			problems = append(problems, fmt.Sprintf("interface %q: %v", ri.ID, err))
		}
	}
	return errs.Aggregate(errs.Config, "registry.validate", "interface validation failed", problems)
}

// clear drops everything a partial load indexed.
func (r *Registry) clear() {
	clear(r.interfaces)
	clear(r.byImpl)
	clear(r.byInterface)
	clear(r.kvp)
	clear(r.factories)
	clear(r.persisted)
	r.missing = nil
}

func (r *Registry) recordCounts() {
	var enabled, disabled int
	for _, d := range r.byImpl {
		if d.Enabled() {
			enabled++
		} else {
			disabled++
		}
	}
	r.opts.Metrics.SetImplementations(enabled, disabled)
}
