// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/netdata/zbxmongo/collector/mongodb"
	"github.com/netdata/zbxmongo/pkg/confopt"
	"github.com/netdata/zbxmongo/pkg/zbxsender"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLines = []mongo.MetricLine{
	{Host: "db1", Key: "mongodb.uptime", Value: "500"},
	{Host: "db1", Key: "mongodb.mem.resident", Value: "64"},
}

const testBlock = "db1 mongodb.uptime 500\ndb1 mongodb.mem.resident 64\n"

func TestNew(t *testing.T) {
	cfg := prepareConfig()

	a := New(cfg)

	require.NotNil(t, a.newSender)
	require.NotNil(t, a.newSource)
	assert.IsType(t, &zbxsender.Sender{}, a.newSender(cfg))
	assert.IsType(t, &mongo.Collector{}, a.newSource(cfg))
	assert.Equal(t, StateIdle, a.State())
}

func TestAgent_runOnce(t *testing.T) {
	tests := map[string]struct {
		source     *mockSource
		sender     *mockSender
		wantBlocks []string
		wantErr    bool
		wantState  State
	}{
		"collects and sends": {
			source:     &mockSource{lines: testLines},
			sender:     &mockSender{},
			wantBlocks: []string{testBlock},
			wantState:  StateSending,
		},
		"reconnects before collecting": {
			source:     &mockSource{lines: testLines, reconnect: true},
			sender:     &mockSender{},
			wantBlocks: []string{testBlock},
			wantState:  StateSending,
		},
		"retries the same block until sent": {
			source:     &mockSource{lines: testLines},
			sender:     &mockSender{failures: 2},
			wantBlocks: []string{testBlock, testBlock, testBlock},
			wantState:  StateSending,
		},
		"nothing collected": {
			source:    &mockSource{},
			sender:    &mockSender{},
			wantState: StatePolling,
		},
		"liveness check fails": {
			source:    &mockSource{ensureErr: errors.New("mock.EnsureConnected() error")},
			sender:    &mockSender{},
			wantErr:   true,
			wantState: StatePolling,
		},
		"collect fails": {
			source:    &mockSource{collectErr: errors.New("mock.Collect() error")},
			sender:    &mockSender{},
			wantErr:   true,
			wantState: StatePolling,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			a := prepareAgent(test.sender, func() statsSource { return test.source })

			err := a.runOnce(context.Background(), test.source, test.sender)

			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, test.wantBlocks, test.sender.sentBlocks())
			assert.Equal(t, test.wantState, a.State())
			assert.Equal(t, 1, test.source.ensureCalls)
		})
	}
}

func TestAgent_runOnce_CanceledWhileSending(t *testing.T) {
	sender := &mockSender{failures: -1}
	source := &mockSource{lines: testLines}
	a := prepareAgent(sender, func() statsSource { return source })
	a.SendRetryDelay = confopt.Duration(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()

	err := a.runOnce(ctx, source, sender)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{testBlock}, sender.sentBlocks())
}

func TestAgent_run(t *testing.T) {
	sender := &mockSender{}
	source := &mockSource{lines: testLines}
	a := prepareAgent(sender, func() statsSource { return source })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); a.run(ctx) }()

	require.Eventually(t, func() bool { return len(sender.sentBlocks()) >= 3 }, time.Second*5, time.Millisecond*10)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("poll loop did not stop after cancellation")
	}

	assert.True(t, source.connected)
	assert.True(t, source.closed)
	assert.Equal(t, StateIdle, a.State())
	for _, block := range sender.sentBlocks() {
		assert.Equal(t, testBlock, block)
	}
}

func TestAgent_run_ConnectFails(t *testing.T) {
	sender := &mockSender{}
	source := &mockSource{connectErr: errors.New("config validation: database host is empty")}
	a := prepareAgent(sender, func() statsSource { return source })

	a.run(context.Background())

	assert.True(t, source.closed)
	assert.Zero(t, source.ensureCalls)
	assert.Empty(t, sender.sentBlocks())
}

func TestServe(t *testing.T) {
	var mu sync.Mutex
	var sources []*mockSource

	sender := &mockSender{}
	a := prepareAgent(sender, func() statsSource {
		mu.Lock()
		defer mu.Unlock()
		s := &mockSource{lines: testLines}
		sources = append(sources, s)
		return s
	})
	numSources := func() int { mu.Lock(); defer mu.Unlock(); return len(sources) }

	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() { defer close(done); serve(a, ch, nil) }()

	require.Eventually(t, func() bool { return len(sender.sentBlocks()) > 0 }, time.Second*5, time.Millisecond*10)

	ch <- syscall.SIGHUP
	require.Eventually(t, func() bool { return numSources() == 2 }, time.Second*5, time.Millisecond*10)

	ch <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("serve did not return after SIGTERM")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sources, 2)
	for i, s := range sources {
		assert.Truef(t, s.closed, "source %d is not closed", i)
	}
}

func TestServe_ReloadsConfig(t *testing.T) {
	var mu sync.Mutex
	var hostnames []string

	a := prepareAgent(&mockSender{}, nil)
	a.newSource = func(cfg Config) statsSource {
		mu.Lock()
		defer mu.Unlock()
		hostnames = append(hostnames, cfg.Hostname)
		return &mockSource{lines: testLines}
	}
	seen := func() []string { mu.Lock(); defer mu.Unlock(); return append([]string(nil), hostnames...) }

	reloaded := a.Config
	reloaded.Hostname = "db2"
	a.Reload = func() (Config, error) { return reloaded, nil }

	sigCh := make(chan os.Signal, 1)
	reloadCh := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() { defer close(done); serve(a, sigCh, reloadCh) }()

	require.Eventually(t, func() bool { return len(seen()) == 1 }, time.Second*5, time.Millisecond*10)

	reloadCh <- struct{}{}
	require.Eventually(t, func() bool { return len(seen()) == 2 }, time.Second*5, time.Millisecond*10)

	// same config again: no restart
	reloadCh <- struct{}{}
	time.Sleep(time.Millisecond * 100)
	assert.Len(t, seen(), 2)

	sigCh <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("serve did not return after SIGTERM")
	}

	assert.Equal(t, []string{"db1", "db2"}, seen())
	assert.Equal(t, "db2", a.Hostname)
}

func TestAgent_reloadConfig(t *testing.T) {
	tests := map[string]struct {
		reload      func(cur Config) (Config, error)
		wantChanged bool
	}{
		"no reload func": {},
		"unchanged": {
			reload: func(cur Config) (Config, error) { return cur, nil },
		},
		"changed": {
			reload: func(cur Config) (Config, error) {
				cur.UpdateEvery = confopt.Duration(time.Minute)
				return cur, nil
			},
			wantChanged: true,
		},
		"reload error": {
			reload: func(cur Config) (Config, error) { return cur, errors.New("mock reload error") },
		},
		"invalid config": {
			reload: func(cur Config) (Config, error) {
				cur.ZabbixServer = ""
				return cur, nil
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			a := prepareAgent(&mockSender{}, nil)
			if test.reload != nil {
				cur := a.Config
				a.Reload = func() (Config, error) { return test.reload(cur) }
			}

			next, changed := a.reloadConfig()

			assert.Equal(t, test.wantChanged, changed)
			if test.wantChanged {
				require.NotNil(t, next)
				assert.NotEqual(t, a.Config, *next)
			} else {
				assert.Nil(t, next)
			}
		})
	}
}

func TestAgent_watchConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zbxmongo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("zabbix_server: zbx\n"), 0o644))

	a := prepareAgent(&mockSender{}, nil)
	ch := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); a.watchConfig(ctx, path, ch) }()

	// the watcher may not be registered yet, keep touching the file until noticed
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("zabbix_server: zbx2\n"), 0o644)
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}, time.Second*5, time.Millisecond*50)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("config watcher did not stop")
	}
}

func TestState_String(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle:         "idle",
		StateConnecting:   "connecting",
		StatePolling:      "polling",
		StateReconnecting: "reconnecting",
		StateSending:      "sending",
		StateSleeping:     "sleeping",
	} {
		assert.Equal(t, want, state.String())
	}
}

func prepareConfig() Config {
	cfg := DefaultConfig()
	cfg.Hostname = "db1"
	cfg.ZabbixServer = "zabbix.example.net"
	return cfg
}

func prepareAgent(sender metricSender, newSource func() statsSource) *Agent {
	cfg := prepareConfig()
	cfg.ReconnectDelay = confopt.Duration(time.Millisecond)
	cfg.SendRetryDelay = confopt.Duration(time.Millisecond)
	cfg.UpdateEvery = confopt.Duration(time.Millisecond * 5)

	return &Agent{
		Config:    cfg,
		newSource: func(Config) statsSource { return newSource() },
		newSender: func(Config) metricSender { return sender },
	}
}

type mockSource struct {
	lines      []mongo.MetricLine
	reconnect  bool
	connectErr error
	ensureErr  error
	collectErr error

	ensureCalls int
	connected   bool
	closed      bool
}

func (m *mockSource) Connect(context.Context) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockSource) EnsureConnected(context.Context) (bool, error) {
	m.ensureCalls++
	if m.ensureErr != nil {
		return false, m.ensureErr
	}
	return m.reconnect, nil
}

func (m *mockSource) Collect(context.Context) ([]mongo.MetricLine, error) {
	if m.collectErr != nil {
		return nil, m.collectErr
	}
	return m.lines, nil
}

func (m *mockSource) Close() error {
	m.closed = true
	return nil
}

// failures is the number of failed sends before success; -1 fails forever.
type mockSender struct {
	mu       sync.Mutex
	failures int
	blocks   []string
}

func (m *mockSender) Send(_ context.Context, block string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = append(m.blocks, block)

	switch {
	case m.failures < 0:
		return fmt.Errorf("%w (zabbix.example.net)", zbxsender.ErrUnreachable)
	case m.failures > 0:
		m.failures--
		return fmt.Errorf("%w (zabbix.example.net)", zbxsender.ErrUnreachable)
	default:
		return nil
	}
}

func (m *mockSender) sentBlocks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blocks == nil {
		return nil
	}
	return append([]string(nil), m.blocks...)
}
