// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingDirectory(t *testing.T) {
	secrets, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, secrets)
}

func TestLoadReadsKeyFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "searxng-url"), []byte("http://localhost:8888\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "searxng-api-key"), []byte("  abc123  \n"), 0o600))

	secrets, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8888", secrets["searxng-url"])
	assert.Equal(t, "abc123", secrets["searxng-api-key"])
}

func TestLoadSkipsDotfilesAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty"), []byte("   \n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "subdir"), 0o755))

	secrets, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, secrets)
}

func TestGetPrefersOverride(t *testing.T) {
	secrets := map[string]string{"searxng-url": "http://stored"}
	assert.Equal(t, "http://flag", Get(secrets, "searxng-url", "http://flag"))
	assert.Equal(t, "http://stored", Get(secrets, "searxng-url", ""))
	assert.Equal(t, "", Get(secrets, "missing", ""))
}
