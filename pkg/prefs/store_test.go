package prefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file is empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prefs.json")
		s, err := NewFileStore(path)
		require.NoError(t, err)

		v, err := s.Load(ctx, "hideComments", false)
		require.NoError(t, err)
		assert.Equal(t, false, v)
		assert.Empty(t, s.Keys())
	})

	t.Run("value survives a reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "prefs.json")
		s, err := NewFileStore(path)
		require.NoError(t, err)

		require.NoError(t, s.Save(ctx, "hideComments", true))
		require.NoError(t, s.Save(ctx, "playbackSpeed.value", "1.75"))

		reopened, err := NewFileStore(path)
		require.NoError(t, err)

		v, err := reopened.Load(ctx, "hideComments", false)
		require.NoError(t, err)
		assert.Equal(t, true, v)

		v, err = reopened.Load(ctx, "playbackSpeed.value", "1.5")
		require.NoError(t, err)
		assert.Equal(t, "1.75", v)

		assert.Equal(t, []string{"hideComments", "playbackSpeed.value"}, reopened.Keys())

		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err), "temp file is renamed away")
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prefs.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

		_, err := NewFileStore(path)
		assert.ErrorContains(t, err, "failed to decode preferences file")
	})

	t.Run("cancelled context", func(t *testing.T) {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "prefs.json"))
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, s.Save(cctx, "k", 1), context.Canceled)
	})
}

func TestMerge(t *testing.T) {
	s := NewMemoryStore(map[string]any{
		"hideComments": true,
		"orphan":       "kept in store, ignored by merge",
	})

	merged, err := Merge(context.Background(), s, map[string]any{
		"hideComments": false,
		"hideShorts":   true,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"hideComments": true,
		"hideShorts":   true,
	}, merged)
}

func TestMemoryStore_FailSaves(t *testing.T) {
	s := NewMemoryStore(nil)
	s.FailSaves(errors.New("quota"))
	assert.ErrorContains(t, s.Save(context.Background(), "k", true), "quota")

	s.FailSaves(nil)
	require.NoError(t, s.Save(context.Background(), "k", true))
	assert.Equal(t, map[string]any{"k": true}, s.Snapshot())
}
