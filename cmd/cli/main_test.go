package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/componentry/internal/cli"
	"github.com/vk/componentry/internal/errs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "componentry.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_ConfigError(t *testing.T) {
	t.Parallel()

	// An unterminated block fails while the configuration is read.
	path := writeConfig(t, "registry {\n  modules = [\"storage\"]\n")
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"-config", path, "check"})

	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrConfig)
	require.Contains(t, err.Error(), "failed to start")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err)
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_EnableThenList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, `
store {
  backend = "file"
  path    = "`+filepath.ToSlash(filepath.Join(dir, "components.yaml"))+`"
}
`)

	require.NoError(t, run(context.Background(), &bytes.Buffer{}, []string{"-config", path, "enable", "storage.local"}))

	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, []string{"-config", path, "-log-level", "error", "list"}))
	require.Regexp(t, `storage\.local\s+storage\s+kvp\s+trust\s+true`, out.String())
	require.Regexp(t, `storage\.memory\s+storage\s+kvp\s+trust\s+false`, out.String())
}

func TestRun_CheckMissingSystemModule(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
registry {
  system_modules = ["ogc"]
}
`)

	err := run(context.Background(), &bytes.Buffer{}, []string{"-config", path, "check"})

	require.ErrorIs(t, err, errs.ErrConfig)
	require.Contains(t, err.Error(), `system module "ogc" is not registered`)
}
