package filesend

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextEscapesLoneDotLines(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("first line\n.\nlast line\n")

	require.NoError(t, Text(&out, in))
	assert.Equal(t, "first line\r\n. \r\nlast line\r\n", out.String())
}

func TestTextLeavesOtherLinesUntouched(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("...\n.x\n")

	require.NoError(t, Text(&out, in))
	assert.Equal(t, "...\r\n.x\r\n", out.String())
}

func TestBinaryStreamsVerbatim(t *testing.T) {
	var out bytes.Buffer
	payload := bytes.Repeat([]byte{0xAB, 0xCD}, 1024)

	require.NoError(t, Binary(&out, bytes.NewReader(payload)))
	assert.Equal(t, payload, out.Bytes())
}
