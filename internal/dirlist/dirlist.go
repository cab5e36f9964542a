// Package dirlist implements DirLister: turning a directory's contents
// into a sequence of menu lines, sorted directories-first and then
// case-insensitive by name, with gophermap files and dotfiles hidden.
package dirlist

import (
	"os"
	"sort"
	"strings"

	"github.com/motsognir/motsognir-go/extmap"
	"github.com/motsognir/motsognir-go/internal/gopherwire"
)

// reservedNames are never listed directly; they drive directory handling
// instead (spec §4.5, I5).
var reservedNames = map[string]bool{
	"gophermap":     true,
	"gophermap.cgi": true,
	"gophermap.php": true,
}

// Mode selects which entries List returns.
type Mode int

const (
	// ModeAll lists both files and directories (the "%FILES%" directive
	// and the default auto-listing both use this).
	ModeAll Mode = iota
	// ModeDirsOnly lists only directories (the "%DIRS%" directive).
	ModeDirsOnly
)

// List reads dirPath and returns menu-ready Items for its visible entries.
// selectorPrefix is the client-visible selector for this directory
// (guaranteed to end in "/"); host/port are filled into every Item as its
// server/port fields.
func List(dirPath, selectorPrefix, host string, port int, ext *extmap.Map, mode Mode) ([]gopherwire.Item, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	filtered := entries[:0:0]
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || reservedNames[name] {
			continue
		}
		if mode == ModeDirsOnly && !e.IsDir() {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		di, dj := filtered[i].IsDir(), filtered[j].IsDir()
		if di != dj {
			return di
		}
		return strings.ToLower(filtered[i].Name()) < strings.ToLower(filtered[j].Name())
	})

	items := make([]gopherwire.Item, 0, len(filtered))
	for _, e := range filtered {
		name := e.Name()
		var t gopherwire.ItemType
		if e.IsDir() {
			t = gopherwire.DIRECTORY
		} else {
			t = gopherwire.ItemType(ext.LookupPath(name))
		}

		items = append(items, gopherwire.Item{
			Type:        t,
			Description: name,
			Selector:    selectorPrefix + percentEncode(name),
			Host:        host,
			Port:        port,
		})
	}

	return items, nil
}

// percentEncode implements the conservative rule of §4.9: letters, digits,
// and '-', '/', '_', '.', '~' pass through; every other byte becomes "%HH"
// in uppercase hex.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '/', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
		}
	}
	return b.String()
}
