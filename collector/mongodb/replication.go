// SPDX-License-Identifier: GPL-3.0-or-later

package mongo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// https://www.mongodb.com/docs/manual/reference/replica-states/
const memberStatePrimary = 1

// ErrNoPrimary means replication lag has no reference point this cycle.
var ErrNoPrimary = errors.New("no replica set member in PRIMARY state")

// ReplicationLagLines emits health, state and repl_lag for every member whose
// host part (text before the first '.') equals host. Lag is the primary's
// optime minus the member's, in seconds, and may be negative.
//
// It returns no lines and no error when no member matches, and ErrNoPrimary
// when a member matches but there is no primary to measure against.
func ReplicationLagLines(members []ReplicaSetMember, host string) ([]MetricLine, error) {
	var local []ReplicaSetMember
	for _, m := range members {
		if memberHost(m.Name) == host {
			local = append(local, m)
		}
	}
	if len(local) == 0 {
		return nil, nil
	}

	optime, ok := primaryOptime(members)
	if !ok {
		return nil, fmt.Errorf("%w: replication lag of '%s' is undefined", ErrNoPrimary, local[0].Name)
	}

	var lines []MetricLine
	for _, m := range local {
		lines = append(lines, memberLagLines(m, host, optime)...)
	}

	return lines, nil
}

func primaryOptime(members []ReplicaSetMember) (time.Time, bool) {
	for _, m := range members {
		if m.State == memberStatePrimary {
			return m.OptimeDate, true
		}
	}
	return time.Time{}, false
}

func memberLagLines(m ReplicaSetMember, host string, primaryOptime time.Time) []MetricLine {
	lag := primaryOptime.Sub(m.OptimeDate)

	return []MetricLine{
		{Host: host, Key: metricKey("health"), Value: strconv.Itoa(m.Health)},
		{Host: host, Key: metricKey("state"), Value: strconv.Itoa(m.State)},
		{Host: host, Key: metricKey("repl_lag"), Value: formatSeconds(lag)},
	}
}

func memberHost(name string) string {
	host, _, _ := strings.Cut(name, ".")
	return host
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
