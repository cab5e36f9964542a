package gopherwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemMarshalText(t *testing.T) {
	i := Item{Type: FILE, Description: "Readme", Selector: "/readme.txt", Host: "example.org", Port: 70}
	assert.Equal(t, "0Readme\t/readme.txt\texample.org\t70\r\n", string(i.MarshalText()))
}

func TestIsTextStreamable(t *testing.T) {
	assert.True(t, FILE.IsTextStreamable())
	assert.False(t, IMAGE.IsTextStreamable())
	assert.False(t, BINARY.IsTextStreamable())
}
