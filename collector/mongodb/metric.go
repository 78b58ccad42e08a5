// SPDX-License-Identifier: GPL-3.0-or-later

package mongo

import "strings"

const metricPrefix = "mongodb"

// MetricLine is one "<host> <key> <value>" item of zabbix_sender input.
type MetricLine struct {
	Host  string
	Key   string
	Value string
}

func (l MetricLine) String() string {
	return l.Host + " " + l.Key + " " + l.Value
}

// Block renders lines as zabbix_sender input, one newline-terminated item per line.
func Block(lines []MetricLine) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func metricKey(parts ...string) string {
	return metricPrefix + "." + strings.Join(parts, ".")
}
