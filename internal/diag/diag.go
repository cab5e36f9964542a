// Package diag provides the server's diagnostic logging sink. Diagnostics
// are emitted through github.com/hashicorp/go-hclog at the levels the
// reference implementation maps onto syslog: INFO for ordinary traffic,
// WARN for recoverable faults, ERROR for fatal startup conditions.
package diag

import (
	"os"

	"github.com/hashicorp/go-hclog"
	deadlock "github.com/sasha-s/go-deadlock"
)

// Level mirrors the verbose-level knob from the configuration file. 0 keeps
// every INFO-level line; any value above 0 suppresses them all (on the sink
// and on every per-peer logger), leaving WARN/ERROR intact.
type Level int

// Diag is the process-wide diagnostic sink. It hands out named child
// loggers, one per accepted connection, so a line in the log can always be
// traced back to a single peer without a process-global prefix.
type Diag struct {
	base    hclog.Logger
	verbose Level

	mu       deadlock.Mutex
	children map[string]hclog.Logger
}

// New builds a Diag writing to stderr (the daemon redirects stdio to
// /dev/null itself once chroot/daemonize has happened; up to that point
// stderr is a legitimate console sink, matching the reference's behaviour
// of logging to syslog from the moment the process starts).
func New(name string, verbose Level) *Diag {
	level := hclog.Info
	if verbose > 0 {
		level = hclog.Warn
	}
	base := hclog.New(&hclog.LoggerOptions{
		Name:            name,
		Level:           level,
		Output:          os.Stderr,
		IncludeLocation: false,
	})
	return &Diag{base: base, verbose: verbose, children: make(map[string]hclog.Logger)}
}

// Info logs a normal-traffic line, suppressed once the configured verbose
// level rises above 0.
func (d *Diag) Info(msg string, args ...interface{}) {
	if d.verbose > 0 {
		return
	}
	d.base.Info(msg, args...)
}

// Warn logs a recoverable fault.
func (d *Diag) Warn(msg string, args ...interface{}) {
	d.base.Warn(msg, args...)
}

// Error logs a fatal startup condition or unrecoverable runtime error.
func (d *Diag) Error(msg string, args ...interface{}) {
	d.base.Error(msg, args...)
}

// ForPeer returns the named child logger for a connection from the given
// peer address, creating it on first use. This is the Go analogue of the
// reference implementation's per-child openlog() prefix.
func (d *Diag) ForPeer(peer string) hclog.Logger {
	d.mu.Lock()
	defer d.mu.Unlock()

	if l, ok := d.children[peer]; ok {
		return l
	}
	l := d.base.Named(peer)
	d.children[peer] = l
	return l
}

// Forget drops a peer's child logger once its connection has closed, so the
// registry does not grow unbounded across a long-running daemon's life.
func (d *Diag) Forget(peer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.children, peer)
}
