package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/fstest"
)

func TestFS_Contract(t *testing.T) {
	fsys, err := New(t.TempDir())
	require.NoError(t, err)
	fstest.Run(t, fsys)
}

func TestFS_RejectsTraversal(t *testing.T) {
	fsys, err := New(t.TempDir())
	require.NoError(t, err)

	err = fsys.WriteFile(context.Background(), "../escape.db", []byte("x"))
	assert.ErrorIs(t, err, filesystem.ErrIO)
	_, err = os.Stat(filepath.Join(filepath.Dir(fsys.Root()), "escape.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestFS_NoTempFilesLeft(t *testing.T) {
	root := t.TempDir()
	fsys, err := New(root)
	require.NoError(t, err)
	require.NoError(t, fsys.WriteFile(context.Background(), "budget.db", []byte("data")))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "budget.db", entries[0].Name())
}

func TestFS_DeleteRootRefused(t *testing.T) {
	fsys, err := New(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, fsys.DeleteDir(context.Background(), "/", true))
	assert.Equal(t, filesystem.KindLocal, fsys.Kind())
	assert.NoError(t, fsys.SetAuthentication(nil))
}
