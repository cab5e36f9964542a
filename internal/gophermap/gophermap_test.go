package gophermap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motsognir/motsognir-go/extmap"
	"github.com/motsognir/motsognir-go/internal/gopherwire"
)

func TestRenderStaticGophermap(t *testing.T) {
	dir := t.TempDir()
	content := "iHello\tfake\tfake\t0\n0Readme\treadme.txt\t\t\n"
	path := filepath.Join(dir, "gophermap")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	items, err := Render(context.Background(), path, Options{
		Hostname: "example.org",
		Port:     70,
		Selector: "/d/",
		ExtMap:   extmap.Default(),
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, gopherwire.INFO, items[0].Type)
	assert.Equal(t, "Hello", items[0].Description)
	assert.Equal(t, "fake", items[0].Host)

	assert.Equal(t, gopherwire.FILE, items[1].Type)
	assert.Equal(t, "example.org", items[1].Host)
	assert.Equal(t, "/d/readme.txt", items[1].Selector)
}

func TestRenderSkipsCommentLines(t *testing.T) {
	dir := t.TempDir()
	content := "# a comment\niHello\tfake\tfake\t0\n"
	path := filepath.Join(dir, "gophermap")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	items, err := Render(context.Background(), path, Options{
		Hostname: "example.org",
		Port:     70,
		Selector: "/d/",
		ExtMap:   extmap.Default(),
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestRenderExpandsFilesDirective(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gophermap"), []byte("%FILES%\n"), 0o644))

	items, err := Render(context.Background(), filepath.Join(dir, "gophermap"), Options{
		Hostname: "example.org",
		Port:     70,
		Selector: "/d/",
		ExtMap:   extmap.Default(),
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a.txt", items[0].Description)
}

func TestFindGophermapPrefersStaticFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gophermap"), []byte("i\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gophermap.cgi"), []byte("i\n"), 0o644))

	path, isScript, found := FindGophermap(dir, true, false, "")
	require.True(t, found)
	assert.False(t, isScript)
	assert.Equal(t, filepath.Join(dir, "gophermap"), path)
}

func TestFindGophermapFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	defaultMap := filepath.Join(t.TempDir(), "default.map")
	require.NoError(t, os.WriteFile(defaultMap, []byte("i\n"), 0o644))

	path, _, found := FindGophermap(dir, false, false, defaultMap)
	require.True(t, found)
	assert.Equal(t, defaultMap, path)
}

func TestIsGophermapName(t *testing.T) {
	assert.True(t, IsGophermapName("gophermap"))
	assert.True(t, IsGophermapName("gophermap.cgi"))
	assert.False(t, IsGophermapName("readme.txt"))
}
