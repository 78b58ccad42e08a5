// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strings"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/netdata/zbxmongo/agent"
	"github.com/netdata/zbxmongo/logger"
	"github.com/netdata/zbxmongo/pkg/buildinfo"
	"github.com/netdata/zbxmongo/pkg/cli"
	"github.com/netdata/zbxmongo/pkg/daemon"
)

const name = "zbxmongo"

func init() {
	// https://github.com/netdata/netdata/issues/8949#issuecomment-638294959
	if v := os.Getenv("TZ"); strings.HasPrefix(v, ":") {
		_ = os.Unsetenv("TZ")
	}
}

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(s string, args ...interface{}) {}))

	opts := parseCLI()

	if opts.Version {
		fmt.Printf("%s, version: %s\n", name, buildinfo.Version)
		return
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		fatalf("config: %v", err)
	}

	if lvl := os.Getenv("ZBXMONGO_LOG_LEVEL"); lvl != "" {
		logger.Level.SetByName(lvl)
	}
	if cfg.DebugMode {
		logger.Level.Set(slog.LevelDebug)
	}

	ctl := daemon.New(cfg.PIDDir, name)

	switch opts.Command {
	case cli.CommandStop:
		os.Exit(stop(ctl))
	case cli.CommandStatus:
		os.Exit(status(ctl))
	}

	if err := cfg.Validate(); err != nil {
		fatalf("config: %v", err)
	}

	if !opts.Foreground() && !daemon.IsDetached() {
		pid, err := ctl.Detach(os.Args[1:])
		if err != nil {
			fatalf("start: %v", err)
		}
		fmt.Printf("%s started (pid %d), output in '%s'\n", name, pid, ctl.OutputPath())
		return
	}

	pidFile := ctl.PIDFile()
	ok, err := pidFile.Lock(os.Getpid())
	if err != nil {
		fatalf("pid file '%s': %v", pidFile.Path(), err)
	}
	if !ok {
		fatalf("another instance holds '%s'", pidFile.Path())
	}
	defer pidFile.Unlock()

	a := agent.New(cfg)
	a.ConfigPath = opts.Config
	a.Reload = func() (agent.Config, error) { return buildConfig(opts) }

	a.Infof("%s: %s", name, buildinfo.Info())
	if u, err := user.Current(); err == nil {
		a.Debugf("current user: name=%s, uid=%s", u.Username, u.Uid)
	}
	a.Debugf("pid file: %s", pidFile.Path())

	a.Run()
}

func parseCLI() *cli.Option {
	opt, err := cli.Parse(name, os.Args[1:])
	if err != nil {
		if cli.IsHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	return opt
}

// buildConfig layers the config file, when given, and then the flags over the defaults.
func buildConfig(opts *cli.Option) (agent.Config, error) {
	cfg := agent.DefaultConfig()

	if opts.Config != "" {
		var err error
		if cfg, err = agent.LoadConfig(opts.Config); err != nil {
			return cfg, err
		}
	}

	applyOptions(&cfg, opts)

	if cfg.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return cfg, fmt.Errorf("resolve hostname: %w", err)
		}
		cfg.Hostname = hostname
	}

	return cfg, nil
}

func applyOptions(cfg *agent.Config, opts *cli.Option) {
	if opts.Host != "" {
		cfg.Hostname = opts.Host
	}
	if opts.DBHost != "" {
		cfg.DBHost = opts.DBHost
	}
	if opts.DBPort != 0 {
		cfg.DBPort = opts.DBPort
	}
	if opts.ZabbixServer != "" {
		cfg.ZabbixServer = opts.ZabbixServer
	}
	if opts.ZabbixPort != 0 {
		cfg.ZabbixPort = opts.ZabbixPort
	}
	if opts.ZabbixSender != "" {
		cfg.ZabbixSender = opts.ZabbixSender
	}
	if opts.PIDDir != "" {
		cfg.PIDDir = opts.PIDDir
	}
	if opts.Debug {
		cfg.DebugMode = true
	}
}

func stop(ctl *daemon.Control) int {
	pid, err := ctl.Stop()
	switch {
	case errors.Is(err, daemon.ErrNotRunning):
		fmt.Printf("%s is not running\n", name)
		return 1
	case err != nil:
		fmt.Fprintf(os.Stderr, "stop: %v\n", err)
		return 1
	}
	fmt.Printf("%s stopped (pid %d)\n", name, pid)
	return 0
}

func status(ctl *daemon.Control) int {
	pid, err := ctl.Status()
	switch {
	case errors.Is(err, daemon.ErrNotRunning):
		fmt.Printf("%s is not running\n", name)
		return 3
	case err != nil:
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	fmt.Printf("%s is running (pid %d)\n", name, pid)
	return 0
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", name, fmt.Sprintf(format, a...))
	os.Exit(1)
}
