// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ycrawler/internal/crawler"
	"github.com/JakeFAU/ycrawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingParents", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b", "out")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "sentinel file must be cleaned up")
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- reverting permissions to allow cleanup in the test environment.
			_ = os.Chmod(tempDir, 0o700)
		})

		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
	})
}

func TestCreateNamespace(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.CreateNamespace(ctx, "1001"))
	info, err := os.Stat(filepath.Join(tempDir, "1001"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	err = store.CreateNamespace(ctx, "1001")
	require.Error(t, err)
	assert.True(t, crawler.IsNamespaceExists(err))

	for _, bad := range []string{"", "..", "a/b"} {
		err = store.CreateNamespace(ctx, bad)
		var nsErr *crawler.NamespaceError
		require.ErrorAs(t, err, &nsErr, "story id %q", bad)
		assert.False(t, crawler.IsNamespaceExists(err))
	}
}

func TestPut(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.CreateNamespace(ctx, "1001"))

	t.Run("ValidPut", func(t *testing.T) {
		data := []byte("<html>article</html>")
		uri, err := store.Put(ctx, "1001", "abc123", data)
		require.NoError(t, err)

		target := filepath.Join(tempDir, "1001", "abc123")
		assert.Equal(t, "file://"+target, uri)
		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, data, readData)

		entries, err := os.ReadDir(filepath.Join(tempDir, "1001"))
		require.NoError(t, err)
		require.Len(t, entries, 1, "no temp files may remain")
	})

	t.Run("Overwrite", func(t *testing.T) {
		_, err := store.Put(ctx, "1001", "dup", []byte("one"))
		require.NoError(t, err)
		_, err = store.Put(ctx, "1001", "dup", []byte("two"))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(filepath.Join(tempDir, "1001", "dup"))
		require.NoError(t, err)
		assert.Equal(t, "two", string(readData))
	})

	t.Run("MissingNamespace", func(t *testing.T) {
		_, err := store.Put(ctx, "9999", "abc", []byte("x"))
		var storeErr *crawler.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "9999", storeErr.StoryID)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		_, err := store.Put(ctx, "1001", "../escape", []byte("x"))
		var storeErr *crawler.StoreError
		require.ErrorAs(t, err, &storeErr)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Put(cctx, "1001", "never", []byte("x"))
		require.ErrorIs(t, err, context.Canceled)
		_, statErr := os.Stat(filepath.Join(tempDir, "1001", "never"))
		assert.True(t, os.IsNotExist(statErr))
	})
}
