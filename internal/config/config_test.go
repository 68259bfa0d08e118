package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/errs"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, LogConfig{Level: "info", Format: "text"}, cfg.Log)
	assert.Equal(t, component.Trust, cfg.Registry.ValidationLevel)
	assert.Equal(t, []string{"location"}, cfg.Registry.SystemModules)
	assert.Equal(t, []string{"storage", "format"}, cfg.Registry.Modules)
	assert.Empty(t, cfg.Registry.ModulePaths)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Empty(t, cfg.Files)
}

func TestLoad_MergesFilesInOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	first := writeFile(t, dir, "first.hcl", `
log {
  level = "debug"
}

registry {
  validation_level = "warn"
  module_paths     = ["contracts"]
}

store {
  backend = "file"
  path    = "state/components.yaml"
}

interface "storage" {
  validation_level = "fail"
}

settings "storage.local" {
  root  = "/srv"
  depth = 3
}
`)
	second := writeFile(t, dir, "second.hcl", `
log {
  format = "json"
}

registry {
  modules = []
}

implementation "storage.memory" {
  validation_level = "trust"
}

settings "storage.local" {
  root = "/data"
}
`)

	cfg, err := Load(context.Background(), first, second)

	require.NoError(t, err)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, component.Warn, cfg.Registry.ValidationLevel)
	assert.Equal(t, []string{filepath.Join(dir, "contracts")}, cfg.Registry.ModulePaths)
	assert.Equal(t, []string{"location"}, cfg.Registry.SystemModules)
	assert.Empty(t, cfg.Registry.Modules)
	assert.Equal(t, filepath.Join(dir, "state/components.yaml"), cfg.Store.Path)
	assert.Equal(t, component.Fail, cfg.InterfaceLevels["storage"])
	assert.Equal(t, component.Trust, cfg.ImplementationLevels["storage.memory"])
	assert.Equal(t, []string{first, second}, cfg.Files)

	root, ok := cfg.Get("storage.local", "root")
	assert.True(t, ok)
	assert.Equal(t, "/data", root)
	depth, ok := cfg.Get("storage.local", "depth")
	assert.True(t, ok)
	assert.Equal(t, "3", depth)
	_, ok = cfg.Get("storage.s3", "bucket")
	assert.False(t, ok)
}

func TestLoad_AggregatesProblems(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "bad.hcl", `
log {
  level  = "loud"
  format = "xml"
}

registry {
  validation_level = "strict"
}

store {
  backend = "nats"
}

interface "storage" {
  validation_level = "maybe"
}
`)

	_, err := Load(context.Background(), path)

	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.True(t, errs.IsFatal(err))
	msg := err.Error()
	for _, want := range []string{
		`log.level: invalid value "loud"`,
		`log.format: invalid value "xml"`,
		`registry.validation_level: unknown validation level "strict"`,
		`interface "storage": unknown validation level "maybe"`,
		"store.url is required for the nats backend",
	} {
		assert.Contains(t, msg, want)
	}
	assert.NotContains(t, msg, "store.bucket", "bucket has a default")
}

func TestLoad_FileErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := Load(context.Background(), filepath.Join(dir, "missing.hcl"))
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = Load(context.Background(), writeFile(t, dir, "syntax.hcl", `log {`))
	assert.ErrorContains(t, err, "failed to parse configuration")

	_, err = Load(context.Background(), writeFile(t, dir, "unknown.hcl", `runner "x" {}`))
	assert.ErrorContains(t, err, "failed to decode configuration")

	_, err = Load(context.Background(), writeFile(t, dir, "settings.hcl", `
settings "x" {
  list = ["a"]
}`))
	assert.ErrorContains(t, err, "must be a string, number or bool")
}
