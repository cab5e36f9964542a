package gmline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motsognir/motsognir-go/internal/gopherwire"
)

func ctx() Context {
	return Context{Hostname: "example.org", Port: 70, CurrentDir: "/d"}
}

func TestParseDirectiveFields(t *testing.T) {
	item, ok := ParseDirectiveFields("0Readme\treadme.txt\t\t")
	require.True(t, ok)
	assert.Equal(t, gopherwire.FILE, item.Type)
	assert.Equal(t, "Readme", item.Description)
	assert.Equal(t, "readme.txt", item.Selector)
}

func TestParseEmptyLineBecomesInfo(t *testing.T) {
	item, ok := ParseDirectiveFields("")
	require.True(t, ok)
	assert.Equal(t, gopherwire.INFO, item.Type)
}

func TestDefaultFillsBothEmpty(t *testing.T) {
	item, _ := ParseDirectiveFields("0Readme\treadme.txt\t\t")
	out := Default(item, ctx())
	assert.Equal(t, "example.org", out.Host)
	assert.Equal(t, 70, out.Port)
	assert.Equal(t, "/d/readme.txt", out.Selector)
}

func TestDefaultKeepsExplicitPortWhenServerEmpty(t *testing.T) {
	item := gopherwire.Item{Type: gopherwire.FILE, Selector: "readme.txt", Port: 7070}
	out := Default(item, ctx())
	assert.Equal(t, "example.org", out.Host)
	assert.Equal(t, 7070, out.Port)
}

func TestDefaultUsesSeventyWhenForeignServerAndPortZero(t *testing.T) {
	item := gopherwire.Item{Type: gopherwire.FILE, Selector: "/elsewhere.txt", Host: "other.example"}
	out := Default(item, ctx())
	assert.Equal(t, 70, out.Port)
}

func TestDefaultDoesNotRewriteInfoLines(t *testing.T) {
	item := gopherwire.Item{Type: gopherwire.INFO, Selector: "readme.txt"}
	out := Default(item, ctx())
	assert.Equal(t, "readme.txt", out.Selector)
}

func TestDefaultIsStableUnderRepeatedApplication(t *testing.T) {
	item, _ := ParseDirectiveFields("0Readme\treadme.txt\t\t")
	once := Default(item, ctx())
	twice := Default(once, ctx())
	assert.Equal(t, once, twice)
}

func TestResolveRelativeEliminatesDotDot(t *testing.T) {
	item := gopherwire.Item{Type: gopherwire.FILE, Selector: "../sibling/readme.txt"}
	out := Default(item, ctx())
	assert.Equal(t, "/sibling/readme.txt", out.Selector)
}
