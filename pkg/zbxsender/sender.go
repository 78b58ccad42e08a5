// SPDX-License-Identifier: GPL-3.0-or-later

package zbxsender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/netdata/zbxmongo/logger"
)

const (
	stderrLimit = 8 << 10 // 8 KiB

	// zabbix_sender exits with 255 when it could not talk to the server.
	exitUnreachable = 255

	waitDelay = time.Second
)

// ErrUnreachable means the sender could not connect to the Zabbix server.
var ErrUnreachable = errors.New("could not connect to Zabbix server")

type Config struct {
	// Binary is the zabbix_sender executable, looked up in PATH when not absolute.
	Binary string
	Server string
	// Port is the Zabbix trapper port, zabbix_sender's default when zero.
	Port int
}

// Sender feeds metric blocks to zabbix_sender over its stdin.
type Sender struct {
	*logger.Logger
	Config
}

func New(cfg Config, log *logger.Logger) *Sender {
	if cfg.Binary == "" {
		cfg.Binary = "zabbix_sender"
	}
	return &Sender{Logger: log, Config: cfg}
}

func (s *Sender) args() []string {
	args := []string{"-v", "-z", s.Server}
	if s.Port > 0 {
		args = append(args, "-p", strconv.Itoa(s.Port))
	}
	// -r: send each line as it is read, -i -: read items from stdin
	return append(args, "-r", "-i", "-")
}

// Send runs the sender once with block as its input. Only exit status 255 is
// reported as ErrUnreachable; every other exit status counts as delivered.
func (s *Sender) Send(ctx context.Context, block string) error {
	ex := exec.CommandContext(ctx, s.Binary, s.args()...)

	var stdout, stderr bytes.Buffer
	ex.Stdin = strings.NewReader(block)
	ex.Stdout = &stdout
	ex.Stderr = &stderr
	ex.WaitDelay = waitDelay

	s.Debugf("executing: %v", ex)
	s.Debugf("sending items:\n%s", block)

	err := ex.Run()

	if out := strings.TrimSpace(stdout.String()); out != "" {
		s.Debugf("stdout     : %s", out)
	}

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("run %s: %w", s.Binary, err)
	}

	if exitErr.ExitCode() == exitUnreachable {
		return fmt.Errorf("%w (%s)", ErrUnreachable, s.Server)
	}

	msg := stderr.String()
	if len(msg) > stderrLimit {
		msg = msg[:stderrLimit] + "… (truncated)"
	}
	s.Debugf("%s exited with status %d, treating as delivered (stderr: %s)",
		s.Binary, exitErr.ExitCode(), strings.TrimSpace(msg))

	return nil
}
