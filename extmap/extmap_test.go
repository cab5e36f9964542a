package extmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLookup(t *testing.T) {
	m := Default()

	typ, ok := m.Lookup("txt")
	require.True(t, ok)
	assert.Equal(t, byte('0'), typ)

	typ, ok = m.Lookup(".JPG")
	require.True(t, ok)
	assert.Equal(t, byte('I'), typ)

	_, ok = m.Lookup("nosuchext")
	assert.False(t, ok)
}

func TestLookupPathFallsBackToBinary(t *testing.T) {
	m := Default()
	assert.Equal(t, byte('9'), m.LookupPath("noextension"))
	assert.Equal(t, byte('9'), m.LookupPath("trailingdot."))
	assert.Equal(t, byte('0'), m.LookupPath("readme.txt"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extmap.conf")
	content := "# comment\ntxt 0\n\nweird 1\nbadline\njpg I\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := Load(path)
	require.NoError(t, err)

	typ, ok := m.Lookup("weird")
	require.True(t, ok)
	assert.Equal(t, byte('1'), typ)

	_, ok = m.Lookup("badline")
	assert.False(t, ok)
}
