// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !unix

package daemon

import "errors"

var errUnsupported = errors.New("daemon mode is not supported on this platform, use -N")

func (c *Control) Detach([]string) (int, error) { return 0, errUnsupported }

func (c *Control) Stop() (int, error) { return 0, errUnsupported }
