// SPDX-License-Identifier: GPL-3.0-or-later

//go:build unix

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Detach starts the current executable with args in a new session, with output
// appended to OutputPath. It returns the child pid; the caller is expected to exit.
func (c *Control) Detach(args []string) (int, error) {
	if pid, err := c.Status(); err == nil {
		return 0, fmt.Errorf("already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %v", err)
	}

	out, err := os.OpenFile(c.OutputPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open output file: %v", err)
	}
	defer func() { _ = out.Close() }()

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), envDetached+"=1")
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start detached instance: %v", err)
	}

	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	return pid, nil
}

// Stop sends SIGTERM to the running instance.
func (c *Control) Stop() (int, error) {
	pid, err := c.Status()
	if err != nil {
		return 0, err
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return pid, fmt.Errorf("signal pid %d: %v", pid, err)
	}

	return pid, nil
}
