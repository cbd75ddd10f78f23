package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockThenLoadVerifies(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "service:\n  name: locked\n")

	manifest, err := Lock(dir, []string{"config.yaml", "missing.yaml"})
	require.NoError(t, err)
	assert.Len(t, manifest.Hashes, 1)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "locked", cfg.Service.Name)
}

func TestLoadDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "service:\n  name: locked\n")
	_, err := Lock(dir, []string{"config.yaml"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("service:\n  name: tampered\n"), 0o600))

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestLoadChecksumsMissing(t *testing.T) {
	_, err := LoadChecksums(t.TempDir())
	assert.ErrorIs(t, err, ErrNoChecksums)
}

func TestComputeBlake3HashStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	a, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	b, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NoError(t, VerifyFileHash(path, a))
}
