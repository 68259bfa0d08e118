package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/componentry/internal/config"
	"github.com/vk/componentry/internal/errs"
	"github.com/vk/componentry/internal/filestore"
	"github.com/vk/componentry/internal/memstore"
	"github.com/vk/componentry/internal/store"
	"github.com/vk/componentry/internal/system"
	"github.com/vk/componentry/internal/testutil"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty is valid", cfg: Config{}},
		{name: "all set", cfg: Config{LogFormat: "json", LogLevel: "warn", HealthcheckPort: 8080}},
		{name: "bad format", cfg: Config{LogFormat: "xml"}, wantErr: "invalid log-format"},
		{name: "bad level", cfg: Config{LogLevel: "trace"}, wantErr: "invalid log-level"},
		{name: "bad port", cfg: Config{HealthcheckPort: 70000}, wantErr: "invalid healthcheck-port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewConfig(tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestApp_CheckAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, logs := SetupAppTest(t, &Config{})
	var out bytes.Buffer
	a.outW = &out

	require.NoError(t, a.Check(ctx))
	assert.Equal(t, "OK: 6 interfaces, 8 implementations (0 enabled)\n", out.String())

	out.Reset()
	require.NoError(t, a.List(ctx))
	assert.Regexp(t, `storage\.memory\s+storage\s+kvp\s+trust\s+false\s+storage`, out.String())
	assert.Regexp(t, `format\.detector\.json\s+format\.detector\s+testing`, out.String())
	assert.Contains(t, logs.String(), "Registry loaded.")
}

func TestApp_SetEnabledSurvivesReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := SetupAppTest(t, &Config{})

	require.NoError(t, a.SetEnabled(ctx, []string{"storage.memory", "location.local"}, true))
	first := a.System().Registry().ID()

	env, err := a.System().Reset(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, env.Registry.ID())
	d, ok := env.Registry.Descriptor("storage.memory")
	require.True(t, ok)
	assert.True(t, d.Enabled())

	err = a.SetEnabled(ctx, []string{"storage.nope"}, true)
	assert.ErrorIs(t, err, errs.ErrImplementationNotFound)
	assert.Error(t, a.SetEnabled(ctx, nil, true))
}

func TestApp_FileStorePersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := testutil.WriteFiles(t, map[string]string{
		"componentry.hcl": `
store {
  backend = "file"
  path    = "state/components.yaml"
}
`,
	})
	cfg := &Config{ConfigPaths: []string{filepath.Join(dir, "componentry.hcl")}}

	first, _ := SetupAppTest(t, cfg)
	require.NoError(t, first.SetEnabled(ctx, []string{"format.detector.yaml"}, true))

	raw, err := os.ReadFile(filepath.Join(dir, "state", "components.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "format.detector.yaml")

	second, _ := SetupAppTest(t, &Config{ConfigPaths: cfg.ConfigPaths})
	env, err := second.System().Init(ctx)
	require.NoError(t, err)
	d, ok := env.Registry.Descriptor("format.detector.yaml")
	require.True(t, ok)
	assert.True(t, d.Enabled())
	d, _ = env.Registry.Descriptor("format.detector.json")
	assert.False(t, d.Enabled())
}

func TestNewApp_InvalidConfig(t *testing.T) {
	t.Parallel()
	dir := testutil.WriteFiles(t, map[string]string{"bad.hcl": `store { backend = "redis" }`})

	_, err := NewApp(&bytes.Buffer{}, &Config{ConfigPaths: []string{filepath.Join(dir, "bad.hcl")}})

	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.True(t, errs.IsFatal(err))
}

func TestApp_MissingSystemModule(t *testing.T) {
	t.Parallel()
	dir := testutil.WriteFiles(t, map[string]string{"c.hcl": `
registry {
  system_modules = ["location", "rendering"]
}
`})
	a, _ := SetupAppTest(t, &Config{ConfigPaths: []string{filepath.Join(dir, "c.hcl")}})

	err := a.Check(context.Background())

	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Equal(t, system.Error, a.System().State())
}

func TestApp_HealthAndMetrics(t *testing.T) {
	t.Parallel()
	a, _ := SetupAppTest(t, &Config{})
	srv := httptest.NewServer(a.healthMux())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	_, err = a.System().Init(context.Background())
	require.NoError(t, err)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "componentry_system_state 3")
	assert.Contains(t, body.String(), `componentry_registry_loads_total{result="ok"} 1`)
}

func TestApp_ServeReloadsUntilCancelled(t *testing.T) {
	t.Parallel()
	a, _ := SetupAppTest(t, &Config{})
	ctx, cancel := context.WithCancel(context.Background())
	reload := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, reload) }()

	require.Eventually(t, func() bool { return a.System().State() == system.Configured }, time.Second, time.Millisecond)
	first := a.System().Registry().ID()

	reload <- struct{}{}
	require.Eventually(t, func() bool {
		reg := a.System().Registry()
		return reg != nil && reg.ID() != first
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestLookup_UsesContextEnv(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := SetupAppTest(t, &Config{})
	require.NoError(t, a.SetEnabled(ctx, []string{"storage.memory"}, true))

	_, err := Lookup(ctx, "storage", map[string]any{"type": "memory"})
	assert.Error(t, err)

	ctx = system.WithEnv(ctx, a.System().Env())
	inst, err := Lookup(ctx, "storage", map[string]any{"type": "memory"})
	require.NoError(t, err)
	assert.Equal(t, "storage.memory", inst.Descriptor().ImplID)
}

func TestOpenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := memstore.New()

	st, closer, err := openStore(ctx, config.StoreConfig{Backend: config.BackendMemory}, mem)
	require.NoError(t, err)
	assert.Same(t, mem, st)
	assert.Nil(t, closer)

	st, closer, err = openStore(ctx, config.StoreConfig{Backend: config.BackendFile, Path: filepath.Join(t.TempDir(), "c.yaml")}, mem)
	require.NoError(t, err)
	assert.IsType(t, &filestore.Store{}, st)
	assert.Nil(t, closer)

	_, _, err = openStore(ctx, config.StoreConfig{Backend: "etcd"}, mem)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

type countingCloser struct{ closed int }

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func TestApp_ReloadReusesAndReleasesStores(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "componentry.hcl")
	writeConfig := func(content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	writeConfig(`
store {
  backend = "file"
  path    = "a.yaml"
}
`)
	a, _ := SetupAppTest(t, &Config{ConfigPaths: []string{path}})
	var opened []*countingCloser
	a.open = func(context.Context, config.StoreConfig, *memstore.Store) (store.Store, io.Closer, error) {
		c := &countingCloser{}
		opened = append(opened, c)
		return memstore.New(), c, nil
	}

	_, err := a.System().Init(ctx)
	require.NoError(t, err)
	for range 2 {
		_, err = a.System().Reset(ctx)
		require.NoError(t, err)
	}
	require.Len(t, opened, 1, "an unchanged store configuration keeps its connection")
	assert.Equal(t, 0, opened[0].closed)

	writeConfig(`
store {
  backend = "file"
  path    = "b.yaml"
}
registry {
  system_modules = ["location", "rendering"]
}
`)
	_, err = a.System().Reset(ctx)
	require.Error(t, err)
	require.Len(t, opened, 2)
	assert.Equal(t, 1, opened[1].closed, "a store opened for a failed load is closed")
	assert.Equal(t, 0, opened[0].closed)

	writeConfig(`
store {
  backend = "file"
  path    = "b.yaml"
}
`)
	_, err = a.System().Reset(ctx)
	require.NoError(t, err)
	require.Len(t, opened, 3)
	assert.Equal(t, 1, opened[0].closed, "the replaced store is closed")
	assert.Equal(t, 0, opened[2].closed)

	require.NoError(t, a.Close())
	assert.Equal(t, 1, opened[2].closed)
}
