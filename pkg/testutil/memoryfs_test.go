package testutil

import (
	"errors"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFSSymlinks(t *testing.T) {
	m := NewMemoryFS()

	require.NoError(t, m.MkdirAll("/data/meshes", 0755))
	require.NoError(t, m.Symlink("/mods/a.esp", "/data/a.esp"))

	target, err := m.Readlink("/data/a.esp")
	require.NoError(t, err)
	assert.Equal(t, "/mods/a.esp", target)

	info, err := m.Lstat("/data/a.esp")
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&fs.ModeSymlink)
	assert.Equal(t, "a.esp", info.Name())

	err = m.Symlink("/mods/b.esp", "/data/a.esp")
	assert.ErrorIs(t, err, os.ErrExist)
	err = m.Symlink("/mods/c.esp", "/missing/c.esp")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = m.Readlink("/data/meshes")
	assert.Error(t, err, "directories are not links")

	require.NoError(t, m.Remove("/data/a.esp"))
	_, err = m.Lstat("/data/a.esp")
	assert.True(t, os.IsNotExist(err))
}

func TestMemoryFSRemoveNonEmptyDir(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.WriteFile("/data/file", []byte("x"), 0644))

	assert.Error(t, m.Remove("/data"))
	require.NoError(t, m.Remove("/data/file"))
	assert.NoError(t, m.Remove("/data"))
}

func TestMemoryFSErrorInjection(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("/data", 0755))
	boom := errors.New("injected")
	m.SetError("/data/locked", boom)

	assert.ErrorIs(t, m.Symlink("/x", "/data/locked"), boom)
	_, err := m.Readlink("/data/locked")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.MkdirAll("/data/locked/sub", 0755), boom)
}

func TestMemoryFSWalk(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.WriteFile("/data/b/file", nil, 0644))
	require.NoError(t, m.Symlink("/mods/a", "/data/a"))
	require.NoError(t, m.WriteFile("/other/file", nil, 0644))

	var seen []string
	links := map[string]bool{}
	require.NoError(t, m.Walk("/data", func(path string, isSymlink bool) error {
		seen = append(seen, path)
		links[path] = isSymlink
		return nil
	}))

	assert.Equal(t, []string{"/data/a", "/data/b", "/data/b/file"}, seen)
	assert.True(t, links["/data/a"])
	assert.False(t, links["/data/b"])

	assert.Error(t, m.Walk("/nowhere", func(string, bool) error { return nil }))
}
