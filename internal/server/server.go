// Package server implements the Listener: binding the dual-stack socket,
// optionally daemonising and dropping privileges, and running the
// accept loop that hands each connection to the ResponseRouter on its own
// goroutine (spec §4.1, §5 — goroutine-per-connection in place of
// fork-per-connection, as §9 explicitly allows).
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/motsognir/motsognir-go/internal/config"
	"github.com/motsognir/motsognir-go/internal/diag"
	"github.com/motsognir/motsognir-go/internal/router"
)

// Server owns the listening socket and the shared, read-only resources
// every connection goroutine needs.
type Server struct {
	Config *config.Config
	Router *router.Router
	Diag   *diag.Diag
}

// New builds a Server.
func New(cfg *config.Config, rt *router.Router, d *diag.Diag) *Server {
	return &Server{Config: cfg, Router: rt, Diag: d}
}

// Listen constructs the listening socket per §4.1: dual-stack AF_INET6
// with IPV6_V6ONLY cleared unless IPv6 is disabled, SO_REUSEADDR set, and
// the runtime's default listen backlog (see below). An IPv4 literal Bind address under dual-stack mode is
// auto-detected and mapped to its "::ffff:"-prefixed IPv6 form rather than
// failing, resolving the probable bug noted in spec §9(b).
func (s *Server) Listen() (net.Listener, error) {
	network := "tcp6"
	bind := s.Config.Bind
	if s.Config.DisableIPv6 {
		network = "tcp4"
	} else if bind != "" {
		if ip := net.ParseIP(bind); ip != nil && ip.To4() != nil {
			bind = "::ffff:" + bind
		}
	}

	addr := net.JoinHostPort(bind, strconv.Itoa(s.Config.Port))

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr == nil && network == "tcp6" && !s.Config.DisableIPv6 {
					sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	// net.ListenConfig does not expose the listen(2) backlog argument;
	// the runtime picks one from net.core.somaxconn. The reference
	// implementation's backlog of 10 is a deliberately small value for a
	// process-per-connection daemon that forks immediately on accept, a
	// constraint that does not apply to this goroutine-per-connection
	// server.
	return ln, nil
}

// Daemonize performs the daemon housekeeping in the current process: umask
// 0, stdio redirected to /dev/null, environment scrubbing, chroot (after a
// chdir into the target), chdir to "/", and privilege drop. It does not
// fork, re-exec or call setsid (Go's runtime cannot safely fork() a
// multi-threaded process), so the process keeps its parent, session and
// controlling terminal.
func (s *Server) Daemonize() error {
	unix.Umask(0)

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemonize: open /dev/null: %w", err)
	}
	defer devnull.Close()

	unix.Dup2(int(devnull.Fd()), int(os.Stdin.Fd()))
	unix.Dup2(int(devnull.Fd()), int(os.Stdout.Fd()))
	unix.Dup2(int(devnull.Fd()), int(os.Stderr.Fd()))

	scrubEnvironment()

	if s.Config.ChrootDir != "" {
		if err := os.Chdir(s.Config.ChrootDir); err != nil {
			return fmt.Errorf("daemonize: chdir into chroot target: %w", err)
		}
		if err := unix.Chroot(s.Config.ChrootDir); err != nil {
			return fmt.Errorf("daemonize: chroot: %w", err)
		}
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("daemonize: chdir /: %w", err)
	}

	if s.Config.RunAsUser != nil {
		if err := dropPrivileges(s.Config.RunAsUser); err != nil {
			return fmt.Errorf("daemonize: privilege drop: %w", err)
		}
	}

	return nil
}

// scrubEnvironment implements spec §6: remove shell-related variables a
// daemon should never inherit.
func scrubEnvironment() {
	for _, v := range []string{"COLUMNS", "DISPLAY", "INPUTRC", "LINES", "SHLVL", "TERM"} {
		os.Unsetenv(v)
	}
}

func dropPrivileges(u *config.ResolvedUser) error {
	if unix.Getuid() != 0 {
		return fmt.Errorf("refusing privilege drop: not started as root")
	}

	if err := unix.Setgroups([]int{int(u.GID)}); err != nil {
		return fmt.Errorf("initgroups: %w", err)
	}
	if err := unix.Setgid(int(u.GID)); err != nil {
		return fmt.Errorf("setgid: %w", err)
	}
	if err := unix.Setuid(int(u.UID)); err != nil {
		return fmt.Errorf("setuid: %w", err)
	}
	if unix.Getuid() != int(u.UID) {
		return fmt.Errorf("post-setuid uid verification failed")
	}

	os.Setenv("USER", u.Name)
	os.Setenv("USERNAME", u.Name)
	os.Setenv("HOME", u.Home)
	for _, v := range []string{"SUDO_USER", "SUDO_UID", "SUDO_GID", "SUDO_COMMAND"} {
		os.Unsetenv(v)
	}

	return nil
}

// Serve runs the accept loop: each accepted connection is handed to the
// Router on its own goroutine. SIGCHLD needs no handling here: os/exec
// reaps the child processes it starts. SIGHUP is not handled by this
// package and keeps its default disposition.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			s.Diag.Error("accept failed", "err", err)
			return fmt.Errorf("accept: %w", err)
		}

		go s.serveOne(ctx, conn, ln.Addr())
	}
}

func (s *Server) serveOne(ctx context.Context, conn net.Conn, localAddr net.Addr) {
	peer := stripV4MappedPrefix(conn.RemoteAddr().String())
	log := s.Diag.ForPeer(peer)
	defer s.Diag.Forget(peer)

	localHost, localPortStr, err := net.SplitHostPort(localAddr.String())
	if err != nil {
		log.Error("bad local address", "err", err)
		conn.Close()
		return
	}
	localPort, _ := strconv.Atoi(localPortStr)

	start := time.Now()
	s.Router.Handle(ctx, conn, stripV4MappedPrefix(localHost), localPort, log)
	log.Info("request handled", "duration", time.Since(start))
}

// stripV4MappedPrefix removes a "::ffff:" prefix from an IPv4-mapped IPv6
// address's textual form (spec §4.1).
func stripV4MappedPrefix(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		port = ""
	}
	host = strings.TrimPrefix(host, "::ffff:")
	if port == "" {
		return host
	}
	return net.JoinHostPort(host, port)
}
