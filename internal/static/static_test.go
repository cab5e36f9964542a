package static

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPErrorStubOmitsPortSuffixAt70(t *testing.T) {
	out := string(HTTPErrorStub("example.org", 70, ""))
	assert.Contains(t, out, "Server: Motsognir")
	assert.Contains(t, out, "Connection: close")
	assert.Contains(t, out, "gopher://example.org/")
	assert.NotContains(t, out, "example.org:70")
}

func TestHTTPErrorStubIncludesNonstandardPort(t *testing.T) {
	out := string(HTTPErrorStub("example.org", 7070, ""))
	assert.Contains(t, out, "gopher://example.org:7070/")
}

func TestHTTPErrorStubUsesConfiguredBody(t *testing.T) {
	out := string(HTTPErrorStub("example.org", 70, "<b>custom</b>"))
	assert.True(t, strings.HasSuffix(out, "<b>custom</b>"))
}

func TestGopherPlusStubShape(t *testing.T) {
	out := string(GopherPlusStub())
	assert.True(t, strings.HasPrefix(out, "+-1\r\n"))
	assert.True(t, strings.HasSuffix(out, ".\r\n"))
	assert.Len(t, strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n"), 5)
}

func TestURLRedirectPageContainsMetaRefresh(t *testing.T) {
	out := string(URLRedirectPage("https://example.com/"))
	assert.Contains(t, out, `<meta http-equiv="refresh" content="10;url=https://example.com/">`)
	assert.False(t, strings.HasSuffix(out, ".\r\n"))
}

func TestCapsDocumentKeyOrder(t *testing.T) {
	out := string(CapsDocument(CapsOptions{Version: "1.0", Architecture: "x86_64"}))
	capsIdx := strings.Index(out, "CAPS\r\n")
	verIdx := strings.Index(out, "CapsVersion=1")
	archIdx := strings.Index(out, "ServerArchitecture=x86_64")
	assert.True(t, capsIdx < verIdx)
	assert.True(t, verIdx < archIdx)
}
