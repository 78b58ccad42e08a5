// SPDX-License-Identifier: GPL-3.0-or-later

// Package daemon detaches the agent from its terminal and controls a detached
// instance through its pid file.
package daemon

import (
	"os"
	"path/filepath"
)

const envDetached = "ZBXMONGO_DETACHED"

// IsDetached reports whether the current process was started by Detach.
func IsDetached() bool {
	return os.Getenv(envDetached) == "1"
}

// Control manages a single named instance in dir.
type Control struct {
	Name string
	Dir  string

	pid *PIDFile
}

func New(dir, name string) *Control {
	return &Control{
		Name: name,
		Dir:  dir,
		pid:  NewPIDFile(dir, name),
	}
}

func (c *Control) PIDFile() *PIDFile { return c.pid }

// OutputPath is where a detached instance writes its stdout and stderr.
func (c *Control) OutputPath() string {
	return filepath.Join(c.Dir, c.Name+".output")
}

// Status returns the pid of the running instance, or ErrNotRunning.
func (c *Control) Status() (int, error) {
	return c.pid.Running()
}
