// SPDX-License-Identifier: GPL-3.0-or-later

package mongo

import (
	"context"
	"errors"
)

// Collect gathers one cycle worth of items: the flattened serverStatus and, for
// replica set members, health/state/lag of the local member.
func (c *Collector) Collect(ctx context.Context) ([]MetricLine, error) {
	status, err := c.ServerStatus(ctx)
	if err != nil {
		return nil, err
	}

	if c.version == nil {
		if ver, err := parseServerVersion(status); err != nil {
			c.Warning(err)
		} else {
			c.Infof("MongoDB server version: %s", ver)
			c.version = ver
		}
	}

	role, err := c.nodeRole(ctx)
	if err != nil {
		return nil, err
	}
	c.Debugf("node role: writable=%v, secondary=%v, setName='%s', msg='%s'",
		role.writable(), fmtOptBool(role.Secondary), role.SetName, role.Msg)

	lines := FlattenServerStatus(status, c.Hostname, role.isPrimary())

	// no replication stats if connected to mongos
	if role.isRoutingNode() {
		return lines, nil
	}

	rs, err := c.ReplicaStatus(ctx)
	if err != nil {
		return nil, err
	}

	lag, err := ReplicationLagLines(rs.Members, c.Hostname)
	if err != nil {
		if !errors.Is(err, ErrNoPrimary) {
			return nil, err
		}
		c.Warningf("replica set '%s': %v, skipping replication items", rs.Set, err)
	}

	return append(lines, lag...), nil
}

func fmtOptBool(v *bool) string {
	if v == nil {
		return "<absent>"
	}
	if *v {
		return "true"
	}
	return "false"
}
