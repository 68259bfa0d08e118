// Package storetest holds the behavior every store.Store backend shares.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/componentry/internal/store"
)

// Run exercises the behavior every backend must share.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty store lists nothing", func(t *testing.T) {
		s := newStore(t)
		got, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("create then list sorted", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx,
			store.Component{ImplID: "b", InterfaceID: "x", Enabled: true},
			store.Component{ImplID: "a", InterfaceID: "x", Enabled: false},
		))

		got, err := s.List(ctx)

		require.NoError(t, err)
		assert.Equal(t, []store.Component{
			{ImplID: "a", InterfaceID: "x", Enabled: false},
			{ImplID: "b", InterfaceID: "x", Enabled: true},
		}, got)
	})

	t.Run("create existing fails without writing", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, store.Component{ImplID: "a", InterfaceID: "x", Enabled: true}))

		err := s.Create(ctx,
			store.Component{ImplID: "c", InterfaceID: "x"},
			store.Component{ImplID: "a", InterfaceID: "x"},
		)

		assert.ErrorIs(t, err, store.ErrExists)
		got, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("update missing fails", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, store.Component{ImplID: "nope", InterfaceID: "x"})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update flips enabled", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, store.Component{ImplID: "a", InterfaceID: "x", Enabled: true}))

		require.NoError(t, s.Update(ctx, store.Component{ImplID: "a", InterfaceID: "x", Enabled: false}))

		got, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.False(t, got[0].Enabled)
	})
}
