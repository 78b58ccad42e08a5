// SPDX-License-Identifier: GPL-3.0-or-later

package mongo

import (
	"fmt"
	"regexp"

	"github.com/blang/semver/v4"
)

// https://www.mongodb.com/docs/manual/reference/command/hello/
var helloMinVersion = semver.Version{Major: 4, Minor: 4, Patch: 2}

// version string is not always valid semver (ex.: 7.0.0-rc2, 4.4.6-ent)
var reVersionCore = regexp.MustCompile(`^\d+\.\d+\.\d+`)

func parseServerVersion(doc Document) (*semver.Version, error) {
	v, ok := doc.Lookup("version")
	if !ok || v.IsDocument() {
		return nil, fmt.Errorf("no 'version' in serverStatus reply")
	}

	s := reVersionCore.FindString(v.String())
	if s == "" {
		return nil, fmt.Errorf("couldn't parse version string '%s'", v)
	}

	ver, err := semver.New(s)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse version string '%s': %v", s, err)
	}

	return ver, nil
}

func supportsHello(ver *semver.Version) bool {
	return ver != nil && ver.GTE(helloMinVersion)
}
