package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestAppendTree_HashesRegularFiles(t *testing.T) {
	jobDir := t.TempDir()
	writeFile(t, filepath.Join(jobDir, "etc", "hosts"), "127.0.0.1 localhost\n")
	writeFile(t, filepath.Join(jobDir, "etc", "ssh", "sshd_config"), "Port 22\n")

	n, err := AppendTree(jobDir, "etc")

	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := Load(jobDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, filepath.Join("etc", "hosts"), entries[0].Path)
	assert.Len(t, entries[0].Sum, 64)
}

func TestAppendTree_AccumulatesAcrossSteps(t *testing.T) {
	jobDir := t.TempDir()
	writeFile(t, filepath.Join(jobDir, "etc", "hosts"), "a\n")
	writeFile(t, filepath.Join(jobDir, "home", "user", "note.txt"), "b\n")

	_, err := AppendTree(jobDir, "etc")
	require.NoError(t, err)
	_, err = AppendTree(jobDir, "home")
	require.NoError(t, err)

	entries, err := Load(jobDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLoad_MissingManifest(t *testing.T) {
	entries, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad_MalformedLine(t *testing.T) {
	jobDir := t.TempDir()
	writeFile(t, filepath.Join(jobDir, "manifest.sha256"), "not a manifest\n")

	_, err := Load(jobDir)

	assert.Error(t, err)
}

func TestVerifyEntry(t *testing.T) {
	jobDir := t.TempDir()
	writeFile(t, filepath.Join(jobDir, "etc", "hosts"), "original\n")

	_, err := AppendTree(jobDir, "etc")
	require.NoError(t, err)

	entries, err := Load(jobDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	ok, err := VerifyEntry(jobDir, entries[0])
	require.NoError(t, err)
	assert.True(t, ok)

	// Alter the captured file and verify the mismatch is caught.
	writeFile(t, filepath.Join(jobDir, "etc", "hosts"), "tampered\n")

	ok, err = VerifyEntry(jobDir, entries[0])
	require.NoError(t, err)
	assert.False(t, ok)
}
