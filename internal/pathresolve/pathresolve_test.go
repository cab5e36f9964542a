package pathresolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePlainSelector(t *testing.T) {
	r := Resolve("/d/readme.txt", "/srv/gopher", "")
	assert.Equal(t, "/srv/gopher/d/readme.txt", r.LocalPath)
	assert.Equal(t, "/srv/gopher", r.EffectiveRoot)
}

func TestResolveUserDirectory(t *testing.T) {
	r := Resolve("/~alice/notes.txt", "/srv/gopher", "/home/%s/public_gopher")
	assert.Equal(t, "/home/alice/public_gopher/notes.txt", r.LocalPath)
	assert.Equal(t, "/home/alice/public_gopher", r.EffectiveRoot)
}

func TestCheckContainmentAcceptsWithinRoot(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "d")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "f.txt"), []byte("hi"), 0o644))

	err := CheckContainment(filepath.Join(sub, "f.txt"), root, nil)
	assert.NoError(t, err)
}

func TestCheckContainmentRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0o600))

	link := filepath.Join(root, "escape")
	require.NoError(t, os.Symlink(outside, link))

	err := CheckContainment(filepath.Join(link, "secret.txt"), root, nil)
	require.Error(t, err)
	var eerr *EvasionError
	assert.ErrorAs(t, err, &eerr)
}

func TestCheckContainmentAcceptsPublicRoot(t *testing.T) {
	root := t.TempDir()
	public := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(public, "f.txt"), []byte("x"), 0o644))

	err := CheckContainment(filepath.Join(public, "f.txt"), root, []string{public})
	assert.NoError(t, err)
}

func TestCheckContainmentToleratesNonexistentLeaf(t *testing.T) {
	root := t.TempDir()
	err := CheckContainment(filepath.Join(root, "does-not-exist.txt"), root, nil)
	assert.NoError(t, err)
}
