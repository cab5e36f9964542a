// Package pathresolve maps a decoded selector to a local filesystem path
// and enforces that the resolved path lies under the gopher root or one of
// the configured public roots. The containment check is the actual safety
// net against path traversal; it uses the OS's symlink-resolving
// canonicaliser, never string manipulation alone (spec §9).
package pathresolve

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Resolved is the outcome of resolving a selector to a local path.
type Resolved struct {
	// LocalPath is the (non-canonicalised) local path built from the
	// effective root and the selector, e.g. "/srv/gopher/d/readme.txt".
	LocalPath string
	// EffectiveRoot is the root this request is confined to: either the
	// gopher root or a per-user directory.
	EffectiveRoot string
}

// EvasionError is returned when the resolved real path escapes every
// permitted root.
type EvasionError struct {
	RealPath string
}

func (e *EvasionError) Error() string {
	return fmt.Sprintf("pathresolve: %q escapes all permitted roots", e.RealPath)
}

// Resolve builds the local path for a decoded selector (§4.3). userDirTmpl
// is the configured per-user template (must contain exactly one "%s"); an
// empty template disables "/~user/..." handling.
func Resolve(selector, gopherRoot, userDirTmpl string) Resolved {
	if userDirTmpl != "" && strings.HasPrefix(selector, "/~") {
		rest := selector[2:]
		slash := strings.IndexByte(rest, '/')
		var user, remainder string
		if slash < 0 {
			user = rest
			remainder = "/"
		} else {
			user = rest[:slash]
			remainder = rest[slash:]
		}
		if user != "" {
			root := fmt.Sprintf(userDirTmpl, user)
			return Resolved{
				LocalPath:     filepath.Join(root, remainder),
				EffectiveRoot: root,
			}
		}
	}

	return Resolved{
		LocalPath:     filepath.Join(gopherRoot, selector),
		EffectiveRoot: gopherRoot,
	}
}

// CheckContainment resolves symlinks on localPath (or, if it does not yet
// exist, the longest existing prefix of it) and confirms the result lies
// under effectiveRoot or one of publicRoots. A non-existent path is not
// itself an evasion; existence is checked later by the caller.
func CheckContainment(localPath, effectiveRoot string, publicRoots []string) error {
	real, err := realOrPrefix(localPath)
	if err != nil {
		return err
	}

	roots := make([]string, 0, 1+len(publicRoots))
	roots = append(roots, effectiveRoot)
	roots = append(roots, publicRoots...)

	for _, root := range roots {
		realRoot, err := realOrPrefix(root)
		if err != nil {
			continue
		}
		if within(real, realRoot) {
			return nil
		}
	}
	return &EvasionError{RealPath: real}
}

// within reports whether path p is real or a descendant of root, both
// already canonicalised.
func within(p, root string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}

// realOrPrefix resolves symlinks on path, walking up to the nearest
// existing ancestor when the path itself does not exist yet, so that a
// request for a not-yet-created file still gets a meaningful containment
// check against its existing parent directory.
func realOrPrefix(path string) (string, error) {
	clean := filepath.Clean(path)
	for {
		real, err := filepath.EvalSymlinks(clean)
		if err == nil {
			return real, nil
		}
		parent := filepath.Dir(clean)
		if parent == clean {
			return "", err
		}
		clean = parent
	}
}
