// Command motsognird is the Gopher daemon: it loads a configuration file,
// binds the listening socket, optionally daemonises and drops privileges,
// and serves requests until killed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/motsognir/motsognir-go/extmap"
	"github.com/motsognir/motsognir-go/internal/cgi"
	"github.com/motsognir/motsognir-go/internal/config"
	"github.com/motsognir/motsognir-go/internal/diag"
	"github.com/motsognir/motsognir-go/internal/router"
	"github.com/motsognir/motsognir-go/internal/server"
)

const defaultConfigPath = "/etc/motsognir.conf"

// Exit codes, per spec §6.
const (
	exitOK           = 0
	exitUnknownArg   = 1
	exitRuntimeFatal = 2
	exitConfigError  = 9
)

func main() {
	configPath := defaultConfigPath
	daemonize := false

	root := &cobra.Command{
		Use:     "motsognird",
		Short:   "Motsognir Gopher daemon",
		Version: "go",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, daemonize)
		},
	}
	root.SilenceUsage = true
	root.Flags().StringVar(&configPath, "config", defaultConfigPath, "path to the configuration file")
	root.Flags().BoolVar(&daemonize, "daemon", false, "daemonise after binding the listening socket")

	root.SetArgs(os.Args[1:])
	if err := root.Execute(); err != nil {
		if _, ok := err.(*config.ConfigError); ok {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitConfigError)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUnknownArg)
	}
}

func run(configPath string, daemonize bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var ext *extmap.Map
	if cfg.ExtMapFile != "" {
		ext, err = extmap.Load(cfg.ExtMapFile)
		if err != nil {
			return &config.ConfigError{Key: "extmap", Err: err}
		}
	} else {
		ext = extmap.Default()
	}

	d := diag.New("motsognir", diag.Level(cfg.Verbose))
	gw := cgi.New(cgi.NewCounters(time.Now()))
	rt := router.New(cfg, ext, gw)
	srv := server.New(cfg, rt, d)

	ln, err := srv.Listen()
	if err != nil {
		d.Error("fatal startup error", "err", &router.SystemError{Op: "listen", Err: err})
		os.Exit(exitRuntimeFatal)
	}

	if daemonize {
		if err := srv.Daemonize(); err != nil {
			d.Error("fatal startup error", "err", &router.SystemError{Op: "daemonize", Err: err})
			os.Exit(exitRuntimeFatal)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		ln.Close()
	}()

	d.Info("listening", "addr", ln.Addr().String())
	if err := srv.Serve(ctx, ln); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		os.Exit(exitRuntimeFatal)
	}
	return nil
}
