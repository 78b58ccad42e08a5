// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
)

// watchConfig signals ch whenever the file at path is written or replaced.
// The parent directory is watched so editors that rename into place are seen.
func (a *Agent) watchConfig(ctx context.Context, path string, ch chan<- struct{}) {
	path, err := homedir.Expand(path)
	if err != nil {
		a.Warningf("config watch: %v", err)
		return
	}
	if path, err = filepath.Abs(path); err != nil {
		a.Warningf("config watch: %v", err)
		return
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		a.Warningf("config watch: %v", err)
		return
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(filepath.Dir(path)); err != nil {
		a.Warningf("config watch '%s': %v", path, err)
		return
	}

	a.Debugf("watching config file '%s'", path)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			a.Debugf("config watch: %s", event)
			select {
			case ch <- struct{}{}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			a.Warningf("config watch: %v", err)
		}
	}
}
