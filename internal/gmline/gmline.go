// Package gmline implements the gophermap line-defaulting and
// relative-selector-resolution algorithm shared by the GophermapEngine
// (static gophermap files) and the CgiGateway's gophermap output mode
// (spec §4.7, §4.8). It has no dependency on either of those packages so
// both can import it without creating a cycle.
package gmline

import (
	"path"
	"strconv"
	"strings"

	"github.com/motsognir/motsognir-go/internal/gopherwire"
)

// Limits on gophermap directive-line fields (spec §4.7).
const (
	MaxDescLen     = 1023
	MaxSelectorLen = 1023
	MaxServerLen   = 63
	MaxPortDigits  = 8
)

// Context carries the fixed facts a line needs in order to fill in missing
// fields and rewrite relative selectors.
type Context struct {
	Hostname  string
	Port      int
	CurrentDir string // the selector's directory part, without a trailing "/"
}

// ParseDirectiveFields tokenizes one gophermap directive line into its
// (type, desc, selector, server, port) fields with the length clamps of
// §4.7. It does not apply defaulting; call Default for that.
func ParseDirectiveFields(line string) (item gopherwire.Item, ok bool) {
	if len(line) == 0 {
		return gopherwire.Item{Type: gopherwire.INFO}, true
	}

	parts := strings.Split(line, "\t")
	first := parts[0]
	if len(first) == 0 {
		return gopherwire.Item{}, false
	}

	desc := first[1:]
	if len(desc) > MaxDescLen {
		desc = desc[:MaxDescLen]
	}

	item = gopherwire.Item{
		Type:        gopherwire.ItemType(first[0]),
		Description: desc,
	}

	if len(parts) > 1 {
		sel := parts[1]
		if len(sel) > MaxSelectorLen {
			sel = sel[:MaxSelectorLen]
		}
		item.Selector = sel
	}
	if len(parts) > 2 {
		srv := parts[2]
		if len(srv) > MaxServerLen {
			srv = srv[:MaxServerLen]
		}
		item.Host = srv
	}
	if len(parts) > 3 {
		portStr := parts[3]
		if len(portStr) > MaxPortDigits {
			portStr = portStr[:MaxPortDigits]
		}
		n, err := strconv.Atoi(portStr)
		if err != nil || n < 1 || n > 65535 {
			item.Port = 0
		} else {
			item.Port = n
		}
	}

	return item, true
}

// Default fills in missing server/port fields and, where applicable,
// rewrites a relative selector into an absolute one anchored at the current
// directory (spec §4.7's buildgophermapline/computerelativepath
// algorithm).
//
// Field-defaulting precedence:
//   - both server and port empty/zero -> fill configured hostname and port.
//   - only port zero, server == configured hostname (case-insensitive) ->
//     use configured port; otherwise port becomes 70.
//   - only server empty -> use configured hostname and keep the explicit
//     port.
//
// Relative-selector rewriting applies only when: the item type is not
// INFO, the selector is non-empty and relative (does not start with '/' or
// "URL:"), and the (possibly just-defaulted) server matches the configured
// hostname case-insensitively.
func Default(item gopherwire.Item, ctx Context) gopherwire.Item {
	serverEmpty := item.Host == ""
	portZero := item.Port == 0

	switch {
	case serverEmpty && portZero:
		item.Host = ctx.Hostname
		item.Port = ctx.Port
	case portZero:
		if strings.EqualFold(item.Host, ctx.Hostname) {
			item.Port = ctx.Port
		} else {
			item.Port = 70
		}
	case serverEmpty:
		item.Host = ctx.Hostname
		// explicit port retained
	}

	if item.Type != gopherwire.INFO &&
		item.Selector != "" &&
		!strings.HasPrefix(item.Selector, "/") &&
		!strings.HasPrefix(item.Selector, "URL:") &&
		strings.EqualFold(item.Host, ctx.Hostname) {
		item.Selector = resolveRelative(ctx.CurrentDir, item.Selector)
	}

	return item
}

// resolveRelative implements computerelativepath: join the current
// directory and the relative selector, collapse "//" to "/", and
// textually eliminate "/../" segments (including a trailing "/.."). This
// is display-only path arithmetic for the link the client sees; it is not
// a security boundary (the PathResolver's realpath check is) — path.Clean
// performs this lexical elimination without touching the filesystem. It
// also drops "." segments and any trailing "/", so "sub/" becomes
// "<current-dir>/sub".
func resolveRelative(currentDir, rel string) string {
	joined := path.Clean(currentDir + "/" + rel)
	if joined == "." {
		return "/"
	}
	return joined
}
