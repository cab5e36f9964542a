// Package router implements the ResponseRouter: the per-connection
// dispatcher that ties the SelectorPipeline, PathResolver, GophermapEngine,
// DirLister, CgiGateway and FileSender together in the exact order spec
// §4.4 and the original daemon's request handler use.
package router

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/motsognir/motsognir-go/extmap"
	"github.com/motsognir/motsognir-go/internal/cgi"
	"github.com/motsognir/motsognir-go/internal/config"
	"github.com/motsognir/motsognir-go/internal/dirlist"
	"github.com/motsognir/motsognir-go/internal/filesend"
	"github.com/motsognir/motsognir-go/internal/gmline"
	"github.com/motsognir/motsognir-go/internal/gopherwire"
	"github.com/motsognir/motsognir-go/internal/gophermap"
	"github.com/motsognir/motsognir-go/internal/pathresolve"
	"github.com/motsognir/motsognir-go/internal/selector"
	"github.com/motsognir/motsognir-go/internal/static"
)

// phpLauncher is the argv prefix used to run a .php script through the PHP
// CGI launcher, whether reached via an ordinary file request, an inline
// gophermap '=' directive, or a gophermap.php map file (spec §4.6, §4.7,
// §4.8).
var phpLauncher = []string{"php-cgi"}

// Router holds the resources shared, read-only, by every connection: the
// loaded configuration, the extension map, and a CGI gateway.
type Router struct {
	Config *config.Config
	ExtMap *extmap.Map
	CGI    *cgi.Gateway
}

// New builds a Router.
func New(cfg *config.Config, ext *extmap.Map, gw *cgi.Gateway) *Router {
	return &Router{Config: cfg, ExtMap: ext, CGI: gw}
}

// Handle serves a single accepted connection end to end: one selector in,
// one response out, then close. localHost/localPort are this server's own
// address as seen on this connection (used when no hostname is
// configured, per §4.1/§6).
func (rt *Router) Handle(ctx context.Context, conn net.Conn, localHost string, localPort int, log hclog.Logger) {
	defer drainAndClose(conn)

	raw, err := selector.ReadLine(ctx, conn)
	if err != nil {
		log.Info("request error", "err", &RequestError{Reason: err.Error()})
		return
	}
	if raw == "" {
		raw = "/"
	}

	hostname := rt.Config.Hostname
	if hostname == "" {
		hostname = localHost
	}
	port := rt.Config.Port
	if port == 0 {
		port = localPort
	}

	if rt.tryPlugin(ctx, conn, raw, hostname, port, conn.RemoteAddr().String()) {
		log.Info("plugin handled request", "selector", raw)
		return
	}

	switch selector.Classify(raw) {
	case selector.KindHTTP:
		conn.Write(static.HTTPErrorStub(hostname, port, rt.Config.HTTPErrorBody))
		return
	case selector.KindGopherPlus:
		conn.Write(static.GopherPlusStub())
		return
	case selector.KindURLRedirect:
		target := strings.TrimPrefix(raw, "URL:")
		conn.Write(static.URLRedirectPage(target))
		return
	}

	req, err := selector.Process(raw, rt.Config.SecondaryURLDelim)
	if err != nil {
		log.Info("request error", "selector", raw, "err", &RequestError{Reason: err.Error()})
		return
	}

	resolved := pathresolve.Resolve(req.Path, rt.Config.GopherRoot, rt.Config.UserDirTmpl)

	if err := pathresolve.CheckContainment(resolved.LocalPath, resolved.EffectiveRoot, rt.Config.PublicRoots); err != nil {
		log.Warn("access denied", "selector", raw, "err", &AccessError{Reason: err.Error()})
		rt.writeForbidden(conn)
		return
	}

	info, statErr := os.Stat(resolved.LocalPath)

	switch {
	case statErr == nil && info.IsDir():
		rt.handleDirectory(ctx, conn, req, resolved, hostname, port, log)
	default:
		rt.handleFile(ctx, conn, req, resolved, hostname, port, statErr, info, log)
	}
}

// tryPlugin implements ResponseRouter dispatch step 1: if a plugin is
// configured and its filter (if any) matches the decoded selector, run it
// with the selector in QUERY_STRING_URL; any output at all means the
// request is considered handled.
func (rt *Router) tryPlugin(ctx context.Context, conn net.Conn, raw, hostname string, port int, remoteAddr string) bool {
	if rt.Config.PluginPath == "" {
		return false
	}
	if rt.Config.PluginFilter != nil && !rt.Config.PluginFilter.MatchString(selector.DecodePercent(raw)) {
		return false
	}

	env := cgi.Env{
		ServerName: hostname,
		ServerPort: port,
		RemoteAddr: remoteAddr,
		QueryURL:   raw,
		ScriptName: raw,
	}

	res, err := rt.CGI.Run(ctx, rt.Config.PluginPath, nil, rt.Config.GopherRoot, env, cgi.ModeRaw, gmline.Context{})
	if err != nil || !res.Ran || len(res.Raw) == 0 {
		return false
	}
	conn.Write(res.Raw)
	return true
}

func (rt *Router) writeForbidden(conn net.Conn) {
	item := gopherwire.Item{Type: gopherwire.INFO, Description: "Forbidden!", Selector: "fake", Host: "fake", Port: 0}
	gopherwire.WriteItem(conn, item)
	gopherwire.WriteTerminator(conn)
}

// handleDirectory implements spec §4.5.
func (rt *Router) handleDirectory(ctx context.Context, conn net.Conn, req *selector.Request, resolved pathresolve.Resolved, hostname string, port int, log hclog.Logger) {
	selectorDir := ensureTrailingSlash(req.Path)
	localDir := ensureTrailingSlash(resolved.LocalPath)

	mapPath, isScript, found := gophermap.FindGophermap(localDir, rt.Config.CGIEnabled, rt.Config.PHPEnabled, rt.Config.DefaultMap)

	var items []gopherwire.Item

	if found && !isScript {
		rendered, err := gophermap.Render(ctx, mapPath, gophermap.Options{
			Hostname:     hostname,
			Port:         port,
			Selector:     selectorDir,
			ExtMap:       rt.ExtMap,
			CGIEnabled:   rt.Config.CGIEnabled,
			PHPEnabled:   rt.Config.PHPEnabled,
			SubGophermap: rt.Config.SubGophermap,
			PHPLauncher:  phpLauncher,
			CGI:          rt.CGI,
			RemoteAddr:   conn.RemoteAddr().String(),
		})
		if err == nil {
			items = rendered
		} else {
			log.Warn("gophermap render failed", "path", mapPath, "err", &ScriptError{Err: err})
		}
	} else if found && isScript {
		gmCtx := gmline.Context{Hostname: hostname, Port: port, CurrentDir: strings.TrimSuffix(selectorDir, "/")}
		env := cgi.Env{ServerName: hostname, ServerPort: port, RemoteAddr: conn.RemoteAddr().String(), ScriptName: selectorDir}

		argv0 := mapPath
		var args []string
		if strings.HasSuffix(mapPath, ".php") {
			argv0 = phpLauncher[0]
			args = append(append([]string{}, phpLauncher[1:]...), mapPath)
		}

		res, err := rt.CGI.Run(ctx, argv0, args, localDir, env, cgi.ModeGophermap, gmCtx)
		if err != nil {
			log.Warn("gophermap script failed", "path", mapPath, "err", &ScriptError{Err: err})
		} else if res.Ran {
			items = res.Items
		}
	} else {
		entries, err := dirlist.List(localDir, selectorDir, hostname, port, rt.ExtMap, dirlist.ModeAll)
		if err != nil {
			log.Warn("directory listing failed", "path", localDir, "err", err)
		} else if len(entries) == 0 {
			entries = []gopherwire.Item{{Type: gopherwire.INFO, Description: "This directory is empty.", Host: hostname, Port: port}}
		}
		items = entries
	}

	for _, item := range items {
		gopherwire.WriteItem(conn, item)
	}
	gopherwire.WriteTerminator(conn)
}

// handleFile implements spec §4.6.
func (rt *Router) handleFile(ctx context.Context, conn net.Conn, req *selector.Request, resolved pathresolve.Resolved, hostname string, port int, statErr error, info os.FileInfo, log hclog.Logger) {
	base := filepath.Base(resolved.LocalPath)

	if req.Path == "/caps.txt" && rt.Config.CapsEnabled {
		conn.Write(static.CapsDocument(static.CapsOptions{
			Version:         "go",
			Architecture:    rt.Config.CapsArchitecture,
			Description:     rt.Config.CapsDescription,
			Geolocation:     rt.Config.CapsGeolocation,
			DefaultEncoding: rt.Config.CapsEncoding,
		}))
		gopherwire.WriteTerminator(conn)
		return
	}

	if statErr != nil || gophermap.IsGophermapName(base) {
		nfErr := &NotFoundError{Path: resolved.LocalPath}
		log.Info("not found", "err", nfErr)
		item := gopherwire.Item{Type: gopherwire.ERROR, Description: "Resource not found.", Host: hostname, Port: port}
		gopherwire.WriteItem(conn, item)
		gopherwire.WriteTerminator(conn)
		return
	}

	if rt.Config.Paranoid && info.Mode().Perm()&0o004 == 0 {
		log.Info("access denied", "err", &AccessError{Reason: "not world-readable under paranoid mode"})
		item := gopherwire.Item{Type: gopherwire.ERROR, Description: "Permission denied.", Host: hostname, Port: port}
		gopherwire.WriteItem(conn, item)
		gopherwire.WriteTerminator(conn)
		return
	}

	ext := strings.TrimPrefix(filepath.Ext(base), ".")

	if ext == "cgi" && rt.Config.CGIEnabled {
		rt.runScriptFile(ctx, conn, resolved.LocalPath, nil, req, hostname, port, log)
		return
	}
	if ext == "php" && rt.Config.PHPEnabled {
		rt.runScriptFile(ctx, conn, resolved.LocalPath, phpLauncher, req, hostname, port, log)
		return
	}

	itemType := gopherwire.ItemType(rt.ExtMap.LookupPath(base))

	f, err := os.Open(resolved.LocalPath)
	if err != nil {
		log.Warn("open failed", "path", resolved.LocalPath, "err", err)
		return
	}
	defer f.Close()

	if itemType.IsTextStreamable() {
		if err := writeTextFile(conn, f); err != nil {
			log.Warn("text streaming failed", "err", err)
			return
		}
		gopherwire.WriteTerminator(conn)
		return
	}

	if err := writeBinaryFile(conn, f); err != nil {
		log.Warn("binary streaming failed", "err", err)
	}
}

func (rt *Router) runScriptFile(ctx context.Context, conn net.Conn, path string, launcherPrefix []string, req *selector.Request, hostname string, port int, log hclog.Logger) {
	env := cgi.Env{
		ServerName:  hostname,
		ServerPort:  port,
		RemoteAddr:  conn.RemoteAddr().String(),
		QueryURL:    req.URLQuery,
		QuerySearch: req.SearchQuery,
		ScriptName:  req.Path,
	}

	argv0 := path
	var args []string
	if len(launcherPrefix) > 0 {
		argv0 = launcherPrefix[0]
		args = append(append([]string{}, launcherPrefix[1:]...), path)
	}

	res, err := rt.CGI.Run(ctx, argv0, args, filepath.Dir(path), env, cgi.ModeRaw, gmline.Context{})
	if err != nil {
		log.Warn("cgi run failed", "path", path, "err", &ScriptError{Err: err})
		return
	}
	if res.ExitErr != nil {
		log.Warn("script exited non-zero", "path", path, "err", &ScriptError{Err: res.ExitErr})
	}
	if res.Ran {
		conn.Write(res.Raw)
	}
}

func writeTextFile(conn net.Conn, f *os.File) error {
	return filesend.Text(conn, f)
}

func writeBinaryFile(conn net.Conn, f *os.File) error {
	return filesend.Binary(conn, f)
}

func ensureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func drainAndClose(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n == 0 || err != nil {
			break
		}
	}
	conn.Close()
}
