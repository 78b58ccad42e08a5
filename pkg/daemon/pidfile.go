// SPDX-License-Identifier: GPL-3.0-or-later

package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrNotRunning is returned when no process holds the pid file lock.
var ErrNotRunning = errors.New("not running")

// PIDFile is a pid file guarded by an advisory lock for the lifetime of the owning process.
type PIDFile struct {
	path string
	lock *flock.Flock
}

func NewPIDFile(dir, name string) *PIDFile {
	return &PIDFile{path: filepath.Join(dir, name+".pid")}
}

func (p *PIDFile) Path() string { return p.path }

// Lock takes the lock and records pid. It reports false if another process holds the lock.
func (p *PIDFile) Lock(pid int) (bool, error) {
	if p.lock != nil {
		return true, nil
	}

	locker := flock.New(p.path)

	ok, err := locker.TryLock()
	if err != nil || !ok {
		_ = locker.Close()
		return false, err
	}

	if err := os.WriteFile(p.path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		_ = locker.Close()
		return false, fmt.Errorf("write pid file '%s': %v", p.path, err)
	}

	p.lock = locker

	return true, nil
}

func (p *PIDFile) Unlock() {
	if p.lock == nil {
		return
	}

	_ = os.Remove(p.path)
	_ = p.lock.Close()
	p.lock = nil
}

// Running returns the pid of the process holding the lock, or ErrNotRunning.
func (p *PIDFile) Running() (int, error) {
	if p.lock != nil {
		return os.Getpid(), nil
	}

	if _, err := os.Stat(p.path); errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotRunning
	}

	probe := flock.New(p.path)
	defer func() { _ = probe.Close() }()

	ok, err := probe.TryLock()
	if err != nil {
		return 0, err
	}
	if ok {
		// stale file left by a process that did not exit cleanly
		_ = probe.Unlock()
		return 0, ErrNotRunning
	}

	return p.readPID()
}

func (p *PIDFile) readPID() (int, error) {
	bs, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(bs)))
	if err != nil {
		return 0, fmt.Errorf("pid file '%s': %v", p.path, err)
	}

	return pid, nil
}
