package config

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/ctxlog"
	"github.com/vk/componentry/internal/errs"
)

//go:embed default.hcl
var defaultHCL []byte

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendNATS   = "nats"
)

// Config is the merged, validated configuration.
type Config struct {
	Log      LogConfig
	Registry RegistryConfig
	Store    StoreConfig
	// InterfaceLevels and ImplementationLevels override the global
	// validation level per id.
	InterfaceLevels      map[string]component.ValidationLevel
	ImplementationLevels map[string]component.ValidationLevel
	// Settings holds the settings blocks, section -> key -> value.
	Settings map[string]map[string]string
	// Files lists the instance files that were merged, in order.
	Files []string
}

type LogConfig struct {
	Level  string
	Format string
}

type RegistryConfig struct {
	ValidationLevel component.ValidationLevel
	SystemModules   []string
	ModulePaths     []string
	Modules         []string
}

type StoreConfig struct {
	Backend string
	Path    string
	URL     string
	Bucket  string
}

// Get returns a value from a settings block.
func (c *Config) Get(section, key string) (string, bool) {
	v, ok := c.Settings[section][key]
	return v, ok
}

type fileRoot struct {
	Log             *logBlock        `hcl:"log,block"`
	Registry        *registryBlock   `hcl:"registry,block"`
	Store           *storeBlock      `hcl:"store,block"`
	Interfaces      []*levelBlock    `hcl:"interface,block"`
	Implementations []*levelBlock    `hcl:"implementation,block"`
	Settings        []*settingsBlock `hcl:"settings,block"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

type registryBlock struct {
	ValidationLevel *string  `hcl:"validation_level,optional"`
	SystemModules   []string `hcl:"system_modules,optional"`
	ModulePaths     []string `hcl:"module_paths,optional"`
	Modules         []string `hcl:"modules,optional"`
}

type storeBlock struct {
	Backend *string `hcl:"backend,optional"`
	Path    *string `hcl:"path,optional"`
	URL     *string `hcl:"url,optional"`
	Bucket  *string `hcl:"bucket,optional"`
}

type levelBlock struct {
	ID              string `hcl:"id,label"`
	ValidationLevel string `hcl:"validation_level"`
}

type settingsBlock struct {
	Section string   `hcl:"section,label"`
	Body    hcl.Body `hcl:",remain"`
}

// raw accumulates merged values before validation.
type raw struct {
	logLevel, logFormat string
	level               string
	system, paths, mods []string
	store               StoreConfig
	ifaceLevels         map[string]string
	implLevels          map[string]string
	settings            map[string]map[string]string
}

// Load reads the embedded defaults and then every file in paths.
func Load(ctx context.Context, paths ...string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	parser := hclparse.NewParser()
	r := &raw{
		ifaceLevels: make(map[string]string),
		implLevels:  make(map[string]string),
		settings:    make(map[string]map[string]string),
	}

	file, diags := parser.ParseHCL(defaultHCL, "default.hcl")
	if diags.HasErrors() {
		return nil, errs.NewInternal("config.Load", diags)
	}
	if err := r.merge(file.Body, ""); err != nil {
		return nil, errs.NewInternal("config.Load", err)
	}

	for _, path := range paths {
		logger.Debug("Loading configuration file.", "path", path)
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, errs.NewConfig("config.Load", path, "failed to parse configuration: %s", diags.Error())
		}
		if err := r.merge(file.Body, filepath.Dir(path)); err != nil {
			return nil, errs.NewConfig("config.Load", path, "failed to decode configuration: %v", err)
		}
	}

	cfg, err := r.validate()
	if err != nil {
		return nil, err
	}
	cfg.Files = slices.Clone(paths)
	return cfg, nil
}

func (r *raw) merge(body hcl.Body, dir string) error {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return diags
	}

	if b := root.Log; b != nil {
		setString(&r.logLevel, b.Level)
		setString(&r.logFormat, b.Format)
	}
	if b := root.Registry; b != nil {
		setString(&r.level, b.ValidationLevel)
		if b.SystemModules != nil {
			r.system = b.SystemModules
		}
		if b.ModulePaths != nil {
			r.paths = make([]string, len(b.ModulePaths))
			for i, p := range b.ModulePaths {
				r.paths[i] = resolve(dir, p)
			}
		}
		if b.Modules != nil {
			r.mods = b.Modules
		}
	}
	if b := root.Store; b != nil {
		setString(&r.store.Backend, b.Backend)
		if b.Path != nil {
			r.store.Path = resolve(dir, *b.Path)
		}
		setString(&r.store.URL, b.URL)
		setString(&r.store.Bucket, b.Bucket)
	}
	for _, b := range root.Interfaces {
		r.ifaceLevels[b.ID] = b.ValidationLevel
	}
	for _, b := range root.Implementations {
		r.implLevels[b.ID] = b.ValidationLevel
	}
	for _, b := range root.Settings {
		attrs, diags := b.Body.JustAttributes()
		if diags.HasErrors() {
			return diags
		}
		section := r.settings[b.Section]
		if section == nil {
			section = make(map[string]string, len(attrs))
			r.settings[b.Section] = section
		}
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return diags
			}
			s, err := convert.Convert(val, cty.String)
			if err != nil || s.IsNull() {
				return fmt.Errorf("settings %q: %s must be a string, number or bool", b.Section, name)
			}
			section[name] = s.AsString()
		}
	}
	return nil
}

func (r *raw) validate() (*Config, error) {
	var problems []string
	cfg := &Config{
		Log:                  LogConfig{Level: r.logLevel, Format: r.logFormat},
		Store:                r.store,
		InterfaceLevels:      make(map[string]component.ValidationLevel, len(r.ifaceLevels)),
		ImplementationLevels: make(map[string]component.ValidationLevel, len(r.implLevels)),
		Settings:             r.settings,
		Registry: RegistryConfig{
			SystemModules: r.system,
			ModulePaths:   r.paths,
			Modules:       r.mods,
		},
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, r.logLevel) {
		problems = append(problems, fmt.Sprintf("log.level: invalid value %q, must be one of debug, info, warn, error", r.logLevel))
	}
	if !slices.Contains([]string{"text", "json"}, r.logFormat) {
		problems = append(problems, fmt.Sprintf("log.format: invalid value %q, must be one of text, json", r.logFormat))
	}

	level, err := component.ParseValidationLevel(r.level)
	if err != nil {
		problems = append(problems, "registry.validation_level: "+err.Error())
	}
	cfg.Registry.ValidationLevel = level
	for _, id := range slices.Sorted(maps.Keys(r.ifaceLevels)) {
		l, err := component.ParseValidationLevel(r.ifaceLevels[id])
		if err != nil {
			problems = append(problems, fmt.Sprintf("interface %q: %v", id, err))
		}
		cfg.InterfaceLevels[id] = l
	}
	for _, id := range slices.Sorted(maps.Keys(r.implLevels)) {
		l, err := component.ParseValidationLevel(r.implLevels[id])
		if err != nil {
			problems = append(problems, fmt.Sprintf("implementation %q: %v", id, err))
		}
		cfg.ImplementationLevels[id] = l
	}

	switch r.store.Backend {
	case BackendMemory:
	case BackendFile:
		if r.store.Path == "" {
			problems = append(problems, "store.path is required for the file backend")
		}
	case BackendNATS:
		if r.store.URL == "" {
			problems = append(problems, "store.url is required for the nats backend")
		}
		if r.store.Bucket == "" {
			problems = append(problems, "store.bucket is required for the nats backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend: invalid value %q, must be one of memory, file, nats", r.store.Backend))
	}

	if err := errs.Aggregate(errs.Config, "config.Load", "configuration is invalid", problems); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func resolve(dir, p string) string {
	if dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
