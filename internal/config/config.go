// Package config loads the server's configuration file: a text file of
// "Key = Value" lines where a '#' opens a line-continuation comment in the
// middle of a value, not just at the start of a line. No INI/properties
// library in the adjacent ecosystem treats '#' that way mid-value, so the
// parser is a small hand-rolled scanner mirroring the state machine of the
// reference loader (state 0 = scanning a key, state 1 = scanning a value,
// state 2 = skipping a trailing comment).
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"regexp"
	"strconv"
	"strings"
)

// Config is the immutable configuration record described in spec §3. It is
// loaded once by the listener and shared read-only by every connection
// goroutine.
type Config struct {
	GopherRoot   string
	PublicRoots  []string
	Port         int
	Hostname     string
	UserDirTmpl  string
	DefaultMap   string
	Verbose      int
	CapsEnabled  bool
	CGIEnabled   bool
	PHPEnabled   bool
	SubGophermap bool
	Paranoid     bool
	DisableIPv6  bool

	CapsArchitecture string
	CapsDescription  string
	CapsGeolocation  string
	CapsEncoding     string

	PluginPath   string
	PluginFilter *regexp.Regexp

	RunAsUser *ResolvedUser
	ChrootDir string

	HTTPErrorBody string
	Bind          string
	ExtMapFile    string

	SecondaryURLDelim byte
}

// ResolvedUser is the uid/gid/home triple the privilege-drop step needs,
// resolved once at load time from the configured username.
type ResolvedUser struct {
	Name string
	UID  uint32
	GID  uint32
	Home string
}

// ConfigError wraps any failure encountered while loading or validating the
// configuration file; it is always fatal at startup (spec §7).
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// rawValues accumulates key -> value pairs before they are validated and
// assembled into a Config. Keys are folded to lower case, matching the
// case-insensitive key rule of spec §6.
type rawValues map[string]string

// Load reads and validates a configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	defer f.Close()

	raw, err := scan(f)
	if err != nil {
		return nil, err
	}
	return build(raw)
}

// scan implements the Key = Value # comment line-continuation scanner.
func scan(r io.Reader) (rawValues, error) {
	raw := make(rawValues)

	br := bufio.NewReader(r)
	lineNo := 0
	for {
		lineNo++
		line, err := br.ReadString('\n')
		if len(line) == 0 && err != nil {
			if err == io.EOF {
				break
			}
			return nil, &ConfigError{Err: fmt.Errorf("line %d: %w", lineNo, err)}
		}
		line = strings.TrimRight(line, "\r\n")

		key, value, ok := splitKeyValue(line)
		if ok {
			raw[strings.ToLower(key)] = value
		}

		if err == io.EOF {
			break
		}
	}
	return raw, nil
}

// splitKeyValue implements the three-state scan: token, value, comment.
// A '#' only begins a comment once the scanner has moved past the '=' (i.e.
// while scanning the value), matching the reference's mid-value comment
// quirk; a line with no '=' at all, or that is blank/whitespace-only after
// trimming, produces ok == false.
func splitKeyValue(line string) (key, value string, ok bool) {
	const (
		stateToken = iota
		stateValue
		stateComment
	)

	state := stateToken
	var keyBuf, valBuf strings.Builder
	seenEquals := false

	for _, r := range line {
		switch state {
		case stateToken:
			if r == '=' {
				seenEquals = true
				state = stateValue
				continue
			}
			keyBuf.WriteRune(r)
		case stateValue:
			if r == '#' {
				state = stateComment
				continue
			}
			valBuf.WriteRune(r)
		case stateComment:
			// discard
		}
	}

	if !seenEquals {
		return "", "", false
	}

	key = strings.TrimSpace(keyBuf.String())
	value = strings.TrimSpace(valBuf.String())
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

func build(raw rawValues) (*Config, error) {
	cfg := &Config{
		Port:         70,
		CapsEnabled:  true,
		SubGophermap: true,
	}

	if v, ok := raw["gopherroot"]; ok {
		cfg.GopherRoot = v
	}
	if cfg.GopherRoot == "" {
		return nil, &ConfigError{Key: "gopherroot", Err: fmt.Errorf("must not be empty")}
	}

	if v, ok := raw["publicdir"]; ok && v != "" {
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.PublicRoots = append(cfg.PublicRoots, p)
			}
		}
	}

	if v, ok := raw["port"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 65535 {
			return nil, &ConfigError{Key: "port", Err: fmt.Errorf("invalid port %q", v)}
		}
		cfg.Port = n
	}

	cfg.Hostname = raw["hostname"]
	cfg.UserDirTmpl = raw["userdir"]
	if cfg.UserDirTmpl != "" {
		if !strings.HasPrefix(cfg.UserDirTmpl, "/") || strings.Count(cfg.UserDirTmpl, "%s") != 1 {
			return nil, &ConfigError{Key: "userdir", Err: fmt.Errorf("must be absolute and contain exactly one %%s")}
		}
	}
	cfg.DefaultMap = raw["defaultgophermap"]

	if v, ok := raw["verbose"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &ConfigError{Key: "verbose", Err: fmt.Errorf("must be >= 0")}
		}
		cfg.Verbose = n
	}

	cfg.CapsEnabled = boolFlag(raw, "capsenabled", true)
	cfg.CGIEnabled = boolFlag(raw, "cgienabled", false)
	cfg.PHPEnabled = boolFlag(raw, "phpenabled", false)
	cfg.SubGophermap = boolFlag(raw, "subgophermapexec", true)
	cfg.Paranoid = boolFlag(raw, "paranoidmode", false)
	cfg.DisableIPv6 = boolFlag(raw, "disableipv6", false)

	cfg.CapsArchitecture = raw["serverarchitecture"]
	cfg.CapsDescription = raw["serverdescription"]
	cfg.CapsGeolocation = raw["servergeolocationstring"]
	cfg.CapsEncoding = raw["serverdefaultencoding"]

	cfg.PluginPath = raw["pluginpath"]
	if v, ok := raw["pluginfilter"]; ok && v != "" {
		re, err := regexp.Compile(v)
		if err != nil {
			return nil, &ConfigError{Key: "pluginfilter", Err: err}
		}
		cfg.PluginFilter = re
	}

	if v, ok := raw["runasuser"]; ok && v != "" {
		ru, err := resolveUser(v)
		if err != nil {
			return nil, &ConfigError{Key: "runasuser", Err: err}
		}
		cfg.RunAsUser = ru
	}

	cfg.ChrootDir = raw["chrootdir"]

	if v, ok := raw["httperrorbodyfile"]; ok && v != "" {
		b, err := os.ReadFile(v)
		if err != nil {
			return nil, &ConfigError{Key: "httperrorbodyfile", Err: err}
		}
		cfg.HTTPErrorBody = string(b)
	}

	cfg.Bind = raw["bind"]
	cfg.ExtMapFile = raw["extmap"]

	if v, ok := raw["securldelim"]; ok && v != "" {
		if len(v) != 1 {
			return nil, &ConfigError{Key: "securldelim", Err: fmt.Errorf("must be a single character")}
		}
		cfg.SecondaryURLDelim = v[0]
	}

	return cfg, nil
}

func boolFlag(raw rawValues, key string, def bool) bool {
	v, ok := raw[key]
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func resolveUser(name string) (*ResolvedUser, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, err
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, err
	}
	return &ResolvedUser{
		Name: u.Username,
		UID:  uint32(uid),
		GID:  uint32(gid),
		Home: u.HomeDir,
	}, nil
}
