package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/componentry/internal/errs"
	"github.com/vk/componentry/internal/registry"
	"github.com/vk/componentry/modules/location"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	size, err := Local{}.GetSize(ctx, location.New(location.SchemeFile, file))
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	size, err = Local{}.GetSize(ctx, location.New(location.SchemeFile, filepath.Join(dir, "missing")))
	require.NoError(t, err)
	assert.Nil(t, size)

	size, err = Local{}.GetSize(ctx, location.New(location.SchemeFile, dir))
	require.NoError(t, err)
	assert.Nil(t, size, "directories have no size")

	ok, err := Local{}.Exists(ctx, location.New(location.SchemeFile, file))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Local{}.Read(ctx, location.New(location.SchemeFile, filepath.Join(dir, "missing")))
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put("k", "abc")

	size, err := m.GetSize(ctx, location.New(location.SchemeMemory, "k"))
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	content, err := m.Read(ctx, location.New(location.SchemeMemory, "k"))
	require.NoError(t, err)
	assert.Equal(t, "abc", content)

	ok, err := m.Exists(ctx, location.New(location.SchemeMemory, "nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestModule_KVPByScheme(t *testing.T) {
	ctx := context.Background()
	mod := &Module{}
	catalog, err := registry.NewCatalog(mod)
	require.NoError(t, err)
	r := registry.New(registry.Options{SystemModules: []string{"storage"}, Catalog: catalog})
	require.NoError(t, r.Load(ctx))
	require.NoError(t, r.EnableImplementation("storage.memory"))
	mod.Memory.Put("x", "1234")

	inst, err := r.FindAndBind(ctx, "storage", map[string]any{"type": location.SchemeMemory})
	require.NoError(t, err)
	size, err := inst.Call(ctx, "GetSize", location.New(location.SchemeMemory, "x"))
	require.NoError(t, err)
	assert.Equal(t, 4, size)

	_, err = r.FindAndBind(ctx, "storage", map[string]any{"type": location.SchemeFile})
	assert.ErrorIs(t, err, errs.ErrImplementationDisabled)
	_, err = r.FindAndBind(ctx, "storage", map[string]any{"type": "ftp"})
	assert.ErrorIs(t, err, errs.ErrImplementationNotFound)
}
