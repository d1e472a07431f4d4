package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-session-keeper/types"
)

const testIdentity = types.BotIdentity("primary")

// conformance runs the behavior every SessionStore must share.
func conformance(t *testing.T, s SessionStore) {
	ctx := context.Background()

	infos, err := s.List(ctx, testIdentity)
	require.NoError(t, err)
	assert.Empty(t, infos)

	first, err := s.Put(ctx, testIdentity, []byte("first blob"))
	require.NoError(t, err)
	second, err := s.Put(ctx, testIdentity, []byte("second blob"))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	t.Run("list most recent first", func(t *testing.T) {
		infos, err := s.List(ctx, testIdentity)
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, second.ID, infos[0].ID)
		assert.Equal(t, first.ID, infos[1].ID)
		assert.Equal(t, int64(len("second blob")), infos[0].Size)
	})

	t.Run("get round trip", func(t *testing.T) {
		data, err := s.Get(ctx, testIdentity, first.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("first blob"), data)
	})

	t.Run("get unknown id", func(t *testing.T) {
		_, err := s.Get(ctx, testIdentity, "no-such-id")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("identities are isolated", func(t *testing.T) {
		infos, err := s.List(ctx, types.BotIdentity("other"))
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, testIdentity, first.ID))
		assert.ErrorIs(t, s.Delete(ctx, testIdentity, first.ID), types.ErrNotFound)

		infos, err := s.List(ctx, testIdentity)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, second.ID, infos[0].ID)
	})
}

func TestMemoryStore(t *testing.T) {
	conformance(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	conformance(t, s)
}

func TestBadgerStore(t *testing.T) {
	s, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	conformance(t, s)
}
