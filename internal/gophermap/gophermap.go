// Package gophermap implements the GophermapEngine: interpreting a static
// gophermap file (or a dynamically generated one, via the CgiGateway) into
// the sequence of menu lines sent back to the client.
package gophermap

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/motsognir/motsognir-go/extmap"
	"github.com/motsognir/motsognir-go/internal/cgi"
	"github.com/motsognir/motsognir-go/internal/dirlist"
	"github.com/motsognir/motsognir-go/internal/gmline"
	"github.com/motsognir/motsognir-go/internal/gopherwire"
)

// maxLineLen bounds each line read from a gophermap file (spec §9).
const maxLineLen = 4096

// Options carries the fixed, per-request facts the engine needs to resolve
// a gophermap file into menu items.
type Options struct {
	Hostname string
	Port     int
	// Selector is the client-visible directory selector, ending in "/".
	Selector string
	// ExtMap is used for %FILES%/%DIRS% expansion item-type lookups.
	ExtMap *extmap.Map

	CGIEnabled   bool
	PHPEnabled   bool
	SubGophermap bool
	PHPLauncher  []string // argv prefix for running a .php script, e.g. {"php-cgi"}

	CGI *cgi.Gateway

	RemoteAddr string
}

// Render parses the gophermap file at path and returns the menu items it
// produces, including any %FILES%/%DIRS% expansions and inline '='
// sub-script output.
func Render(ctx context.Context, path string, opts Options) ([]gopherwire.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir := filepath.Dir(path)
	gmCtx := gmline.Context{Hostname: opts.Hostname, Port: opts.Port, CurrentDir: strings.TrimSuffix(opts.Selector, "/")}

	var items []gopherwire.Item

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, maxLineLen), maxLineLen)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case strings.HasPrefix(line, "#"):
			continue
		case strings.TrimSpace(line) == "%FILES%":
			entries, err := dirlist.List(dir, opts.Selector, opts.Hostname, opts.Port, opts.ExtMap, dirlist.ModeAll)
			if err == nil {
				items = append(items, entries...)
			}
		case strings.TrimSpace(line) == "%DIRS%":
			entries, err := dirlist.List(dir, opts.Selector, opts.Hostname, opts.Port, opts.ExtMap, dirlist.ModeDirsOnly)
			if err == nil {
				items = append(items, entries...)
			}
		default:
			item, ok := gmline.ParseDirectiveFields(line)
			if !ok {
				continue
			}
			if item.Type == gopherwire.DIRECTIVE {
				sub, err := runInline(ctx, item.Description, dir, opts, gmCtx)
				if err == nil {
					items = append(items, sub...)
				}
				continue
			}
			items = append(items, gmline.Default(item, gmCtx))
		}
	}

	return items, scanner.Err()
}

// runInline resolves an '=' directive's description as a script path and
// runs it in gophermap mode, per spec §4.7.
func runInline(ctx context.Context, scriptRel, dir string, opts Options, gmCtx gmline.Context) ([]gopherwire.Item, error) {
	if !opts.SubGophermap {
		return nil, errors.New("gophermap: sub-gophermap execution disabled")
	}

	scriptPath := scriptRel
	if !filepath.IsAbs(scriptPath) {
		scriptPath = filepath.Join(dir, scriptPath)
	}

	env := cgi.Env{
		ServerName:  opts.Hostname,
		ServerPort:  opts.Port,
		RemoteAddr:  opts.RemoteAddr,
		ScriptName:  opts.Selector,
	}

	var argv0 string
	var args []string

	if strings.HasSuffix(scriptPath, ".php") && opts.PHPEnabled {
		if len(opts.PHPLauncher) == 0 {
			return nil, errors.New("gophermap: php support enabled without a launcher")
		}
		argv0 = opts.PHPLauncher[0]
		args = append(append([]string{}, opts.PHPLauncher[1:]...), scriptPath)
	} else if opts.CGIEnabled {
		argv0 = scriptPath
	} else {
		return nil, errors.New("gophermap: inline execution requires cgi or php support")
	}

	res, err := opts.CGI.Run(ctx, argv0, args, dir, env, cgi.ModeGophermap, gmCtx)
	if err != nil {
		return nil, err
	}
	if !res.Ran {
		return nil, nil
	}
	return res.Items, nil
}

// FindGophermap locates which of the recognised gophermap filenames exists
// in dir, preferring the static file, then gophermap.cgi (if enabled),
// then gophermap.php (if enabled), falling back to defaultMap if set.
func FindGophermap(dir string, cgiEnabled, phpEnabled bool, defaultMap string) (path string, isScript bool, found bool) {
	candidates := []struct {
		name     string
		script   bool
		enabled  bool
	}{
		{"gophermap", false, true},
		{"gophermap.cgi", true, cgiEnabled},
		{"gophermap.php", true, phpEnabled},
	}

	for _, c := range candidates {
		if !c.enabled {
			continue
		}
		p := filepath.Join(dir, c.name)
		if fileExists(p) {
			return p, c.script, true
		}
	}

	if defaultMap != "" && fileExists(defaultMap) {
		return defaultMap, false, true
	}

	return "", false, false
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// IsGophermapName reports whether base is one of the reserved gophermap
// filenames that must never be served as direct content (spec §3, I5).
func IsGophermapName(base string) bool {
	switch base {
	case "gophermap", "gophermap.cgi", "gophermap.php":
		return true
	default:
		return false
	}
}
