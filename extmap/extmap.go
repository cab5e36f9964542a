// Package extmap provides a simple lookup table mapping file extensions to
// Gopher item-type characters.
package extmap

import (
	"bufio"
	"os"
	"strings"
	"sync"
)

// Map is an immutable extension -> Gopher item-type lookup table.
//
// A zero Map is not usable; construct one with Default or Load.
type Map struct {
	mu      sync.RWMutex
	entries map[string]byte
}

// Default returns the built-in extension map, used when no extension-map
// file is configured.
func Default() *Map {
	m := &Map{entries: make(map[string]byte, len(defaultEntries))}
	for ext, t := range defaultEntries {
		m.entries[ext] = t
	}
	return m
}

// Load reads an extension map file. Each line has the form
// "extension<whitespace>itemtype", e.g. "txt 0". Blank lines and lines
// starting with '#' are ignored. Unknown lines are skipped rather than
// rejected, matching the permissive behaviour of the reference loader.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := &Map{entries: make(map[string]byte)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 || len(fields[1]) != 1 {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(fields[0], "."))
		m.entries[ext] = fields[1][0]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Lookup returns the Gopher item-type character for a file extension
// (without the leading dot, case-insensitive). ok is false when the
// extension is not in the map.
func (m *Map) Lookup(ext string) (t byte, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok = m.entries[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return t, ok
}

// LookupPath returns the Gopher item-type for a path's extension, falling
// back to '9' (BINARY) when the extension is unknown.
func (m *Map) LookupPath(name string) byte {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return '9'
	}
	if t, ok := m.Lookup(name[i+1:]); ok {
		return t
	}
	return '9'
}

var defaultEntries = map[string]byte{
	"txt":  '0',
	"md":   '0',
	"c":    '0',
	"h":    '0',
	"go":   '0',
	"py":   '0',
	"conf": '0',
	"cfg":  '0',
	"log":  '0',
	"gif":  'g',
	"jpg":  'I',
	"jpeg": 'I',
	"png":  'p',
	"bmp":  'I',
	"html": 'h',
	"htm":  'h',
	"mp3":  's',
	"ogg":  's',
	"wav":  's',
	"mod":  's',
	"it":   's',
	"xm":   's',
	"tar":  '5',
	"gz":   '5',
	"zip":  '5',
	"bz2":  '5',
	"xz":   '5',
	"uu":   '6',
	"hqx":  '4',
}
