package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeyProvider_EnsureIsStable(t *testing.T) {
	provider := NewFileKeyProvider(t.TempDir())

	first, err := provider.Ensure()
	require.NoError(t, err)
	require.Len(t, first, keySize)

	second, err := provider.Ensure()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFileKeyProvider_DistinctPerDirectory(t *testing.T) {
	a, err := NewFileKeyProvider(t.TempDir()).Ensure()
	require.NoError(t, err)
	b, err := NewFileKeyProvider(t.TempDir()).Ensure()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFileKeyProvider_RejectsCorruptKeyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte("not hex"), 0600))

	_, err := NewFileKeyProvider(dir).Ensure()
	assert.Error(t, err)
}

func TestFileKeyProvider_RejectsTruncatedKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte("deadbeef"), 0600))

	_, err := NewFileKeyProvider(dir).Ensure()
	assert.Error(t, err)
}
