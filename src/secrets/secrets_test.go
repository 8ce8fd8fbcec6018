package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set(KeyAccessToken, []byte("tok-123")))

	got, err := store.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, []byte("tok-123"), got)

	require.NoError(t, store.Set(KeyAccessToken, []byte("tok-456")))
	got, err = store.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, []byte("tok-456"), got)
}

func TestFileStoreMissingSecret(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(KeyRefreshToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set(KeyPinVerifier, []byte("verifier")))
	require.NoError(t, store.Delete(KeyPinVerifier))
	require.NoError(t, store.Delete(KeyPinVerifier))

	_, err = store.Get(KeyPinVerifier)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	for _, name := range []string{"", "../outside", "a/b", `a\b`, ".."} {
		assert.Error(t, store.Set(name, []byte("x")), "name %q", name)
		_, err := store.Get(name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(KeyRefreshToken, []byte("refresh-1")))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.Get(KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, []byte("refresh-1"), got)
}

func TestFileStoreFileMode(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(KeyAccessToken, []byte("tok")))

	info, err := os.Stat(filepath.Join(dir, KeyAccessToken))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
