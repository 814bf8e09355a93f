// Package fstest checks a filesystem.FileSystem against the behaviour the
// snapshot transport relies on. Provider tests run it against their backend
// or a fake of it.
package fstest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
)

// Run exercises fsys. It must start empty.
func Run(t *testing.T, fsys filesystem.FileSystem) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		ok, err := fsys.FileExists(ctx, "absent.db")
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = fsys.DirExists(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = fsys.ReadFile(ctx, "absent.db")
		assert.ErrorIs(t, err, filesystem.ErrIO)
		assert.NoError(t, fsys.DeleteFile(ctx, "absent.db"))
	})

	t.Run("write read", func(t *testing.T) {
		require.NoError(t, fsys.WriteFile(ctx, "budget.db", []byte("v1")))
		require.NoError(t, fsys.WriteFile(ctx, "budget.db", []byte("v2")))
		ok, err := fsys.FileExists(ctx, "budget.db")
		require.NoError(t, err)
		assert.True(t, ok)
		b, err := fsys.ReadFile(ctx, "budget.db")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), b)

		require.NoError(t, fsys.WriteFile(ctx, "empty.db", nil))
		b, err = fsys.ReadFile(ctx, "empty.db")
		require.NoError(t, err)
		assert.Empty(t, b)
	})

	t.Run("copy move", func(t *testing.T) {
		require.NoError(t, fsys.WriteFile(ctx, "src.db", []byte("data")))
		require.NoError(t, fsys.WriteFile(ctx, "taken.db", []byte("old")))

		err := fsys.CopyFile(ctx, "src.db", "taken.db", false)
		assert.True(t, errors.Is(err, filesystem.ErrExists), "got %v", err)
		require.NoError(t, fsys.CopyFile(ctx, "src.db", "taken.db", true))
		b, err := fsys.ReadFile(ctx, "taken.db")
		require.NoError(t, err)
		assert.Equal(t, []byte("data"), b)

		require.NoError(t, fsys.MoveFile(ctx, "src.db", "moved.db", false))
		ok, _ := fsys.FileExists(ctx, "src.db")
		assert.False(t, ok)
		ok, _ = fsys.FileExists(ctx, "moved.db")
		assert.True(t, ok)
	})

	t.Run("directories", func(t *testing.T) {
		require.NoError(t, fsys.CreateDir(ctx, "Apps/Budget"))
		ok, err := fsys.DirExists(ctx, "Apps/Budget")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, fsys.WriteFile(ctx, "Apps/Budget/a.db", []byte("a")))
		require.NoError(t, fsys.WriteFile(ctx, "Apps/Budget/b.db", []byte("b")))
		require.NoError(t, fsys.WriteFile(ctx, "Apps/Budget/notes.txt", []byte("n")))
		require.NoError(t, fsys.CreateDir(ctx, "Apps/Budget/archive"))

		files, err := fsys.ListFiles(ctx, "Apps/Budget", "*.db")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.db", "b.db"}, files)
		dirs, err := fsys.ListDirs(ctx, "Apps", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"Budget"}, dirs)

		err = fsys.DeleteDir(ctx, "Apps/Budget", false)
		assert.ErrorIs(t, err, filesystem.ErrIO)

		require.NoError(t, fsys.MoveDir(ctx, "Apps/Budget", "Apps/Moved"))
		ok, _ = fsys.FileExists(ctx, "Apps/Moved/a.db")
		assert.True(t, ok)
		ok, _ = fsys.DirExists(ctx, "Apps/Budget")
		assert.False(t, ok)

		require.NoError(t, fsys.DeleteDir(ctx, "Apps/Moved", true))
		ok, _ = fsys.DirExists(ctx, "Apps/Moved")
		assert.False(t, ok)
	})
}
