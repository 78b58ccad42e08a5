// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gohugoio/hashstructure"
	"github.com/sourcegraph/conc"

	"github.com/netdata/zbxmongo/collector/mongodb"
	"github.com/netdata/zbxmongo/logger"
	"github.com/netdata/zbxmongo/pkg/zbxsender"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StatePolling
	StateReconnecting
	StateSending
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StatePolling:
		return "polling"
	case StateReconnecting:
		return "reconnecting"
	case StateSending:
		return "sending"
	case StateSleeping:
		return "sleeping"
	default:
		return "idle"
	}
}

type statsSource interface {
	Connect(ctx context.Context) error
	EnsureConnected(ctx context.Context) (bool, error)
	Collect(ctx context.Context) ([]mongo.MetricLine, error)
	Close() error
}

type metricSender interface {
	Send(ctx context.Context, block string) error
}

// Agent polls one MongoDB server and forwards its items to Zabbix until stopped.
type Agent struct {
	*logger.Logger
	Config

	// ConfigPath, when set, is watched and a change restarts the poll instance
	// with the configuration returned by Reload.
	ConfigPath string
	// Reload rebuilds the configuration on SIGHUP or a config file change.
	Reload func() (Config, error)

	newSource func(Config) statsSource
	newSender func(Config) metricSender

	state atomic.Int32
}

func New(cfg Config) *Agent {
	return &Agent{
		Logger: logger.New().With(
			slog.String("component", "agent"),
		),
		Config:    cfg,
		newSource: newCollector,
		newSender: newZabbixSender,
	}
}

func newCollector(cfg Config) statsSource {
	return mongo.New(mongo.Config{
		Hostname:   cfg.Hostname,
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		Timeout:    cfg.Timeout.Duration(),
		RetryDelay: cfg.RetryDelay.Duration(),
	}, logger.New().With(slog.String("component", "mongodb")))
}

func newZabbixSender(cfg Config) metricSender {
	return zbxsender.New(zbxsender.Config{
		Binary: cfg.ZabbixSender,
		Server: cfg.ZabbixServer,
		Port:   cfg.ZabbixPort,
	}, logger.New().With(slog.String("component", "zabbix_sender")))
}

func (a *Agent) State() State { return State(a.state.Load()) }

func (a *Agent) setState(s State) {
	if prev := State(a.state.Swap(int32(s))); prev != s {
		a.Debugf("state: %s -> %s", prev, s)
	}
}

// Run polls until SIGINT or SIGTERM. SIGHUP restarts the poll instance with a
// fresh database connection.
func (a *Agent) Run() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reloadCh := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	var wg conc.WaitGroup
	if a.ConfigPath != "" {
		wg.Go(func() { a.watchConfig(ctx, a.ConfigPath, reloadCh) })
	}

	serve(a, sigCh, reloadCh)

	cancel()
	wg.Wait()
}

func serve(a *Agent, sigCh <-chan os.Signal, reloadCh <-chan struct{}) {
	for {
		ctx, cancel := context.WithCancel(context.Background())

		var wg conc.WaitGroup
		wg.Go(func() { a.run(ctx) })

		exit, next := a.waitEvent(sigCh, reloadCh)

		cancel()

		if timeout := time.Second * 10; !waitStopped(&wg, timeout) {
			a.Errorf("stopping poll instance timed out after %s. Exiting...", timeout)
			return
		}

		if exit {
			return
		}
		if next != nil {
			a.Config = *next
		}
	}
}

// waitEvent blocks until the running instance has to stop. next is the
// configuration for the following instance, nil to keep the current one.
func (a *Agent) waitEvent(sigCh <-chan os.Signal, reloadCh <-chan struct{}) (exit bool, next *Config) {
	for {
		select {
		case sig := <-sigCh:
			if sig != syscall.SIGHUP {
				a.Infof("received %s signal (%d). Terminating...", sig, sig)
				return true, nil
			}
			a.Infof("received %s signal (%d). Restarting running instance", sig, sig)
			next, _ = a.reloadConfig()
			return false, next
		case <-reloadCh:
			if next, changed := a.reloadConfig(); changed {
				a.Infof("config file '%s' changed. Restarting running instance", a.ConfigPath)
				return false, next
			}
		}
	}
}

// reloadConfig returns the new configuration and whether it differs from the current one.
func (a *Agent) reloadConfig() (*Config, bool) {
	if a.Reload == nil {
		return nil, false
	}

	cfg, err := a.Reload()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		a.Errorf("reload config: %v, keeping the current one", err)
		return nil, false
	}

	oldHash, err1 := hashstructure.Hash(a.Config, nil)
	newHash, err2 := hashstructure.Hash(cfg, nil)
	if err1 == nil && err2 == nil && oldHash == newHash {
		a.Debug("config is unchanged")
		return nil, false
	}

	return &cfg, true
}

func waitStopped(wg *conc.WaitGroup, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	done := make(chan struct{})

	go func() { wg.Wait(); close(done) }()

	select {
	case <-t.C:
		return false
	case <-done:
		return true
	}
}

func (a *Agent) run(ctx context.Context) {
	a.Info("instance is started")
	defer func() { a.setState(StateIdle); a.Info("instance is stopped") }()

	a.Infof("using config: %s", a.Config)

	src := a.newSource(a.Config)
	sender := a.newSender(a.Config)
	defer func() {
		if err := src.Close(); err != nil {
			a.Warningf("closing database connection: %v", err)
		}
	}()

	a.setState(StateConnecting)
	if err := src.Connect(ctx); err != nil {
		if ctx.Err() == nil {
			a.Errorf("connect: %v", err)
		}
		return
	}

	for {
		if err := a.runOnce(ctx, src, sender); err != nil {
			if ctx.Err() != nil {
				return
			}
			a.Errorf("poll cycle: %v", err)
		}

		a.setState(StateSleeping)
		if err := sleep(ctx, a.UpdateEvery.Duration()); err != nil {
			return
		}
	}
}

// runOnce does one poll cycle: liveness check, collect, forward.
func (a *Agent) runOnce(ctx context.Context, src statsSource, sender metricSender) error {
	a.setState(StatePolling)

	reconnected, err := src.EnsureConnected(ctx)
	if err != nil {
		return err
	}
	if reconnected {
		a.setState(StateReconnecting)
		a.Infof("reconnected to MongoDB server, resuming in %s", a.ReconnectDelay)
		if err := sleep(ctx, a.ReconnectDelay.Duration()); err != nil {
			return err
		}
		a.setState(StatePolling)
	}

	lines, err := src.Collect(ctx)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		a.Debug("no items collected, nothing to send")
		return nil
	}

	a.setState(StateSending)

	return a.send(ctx, sender, mongo.Block(lines))
}

// send retries the same block until the sender accepts it.
func (a *Agent) send(ctx context.Context, sender metricSender, block string) error {
	for {
		err := sender.Send(ctx, block)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		a.Warningf("%v, retrying in %s", err, a.SendRetryDelay)

		if err := sleep(ctx, a.SendRetryDelay.Duration()); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
