// SPDX-License-Identifier: GPL-3.0-or-later

package mongo

// https://www.mongodb.com/docs/manual/reference/command/serverStatus
// Keys outside these sets are dropped, so new serverStatus sections never
// change the item list sent to Zabbix.
var (
	flatKeys = newKeySet(
		"version",
		"process",
		"uptime",
		"uptimeEstimate",
		"localTime",
		"writeBacksQueued",
		"ok",
	)
	singleNestedKeys = newKeySet(
		"mem",
		"connections",
		"cursors",
		"backgroundFlushing",
		"network",
		"opcounters",
		"asserts",
		"extra_info",
	)
	doubleNestedKeys = newKeySet(
		"indexCounters",
		"globalLock",
	)
	// sub-sections of doubleNestedKeys flattened one level deeper
	doubleNestedSubKeys = newKeySet(
		"currentQueue",
		"activeClients",
		"btree",
	)
)

type keySet map[string]bool

func newKeySet(keys ...string) keySet {
	set := make(keySet, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

type flattenFunc func(lines []MetricLine, host, key string, v Value) []MetricLine

var flattenCategories = []struct {
	keys    keySet
	flatten flattenFunc
}{
	{keys: flatKeys, flatten: flattenFlat},
	{keys: singleNestedKeys, flatten: flattenSingleNested},
	{keys: doubleNestedKeys, flatten: flattenDoubleNested},
}

// FlattenServerStatus turns a serverStatus reply into "mongodb.<dotted.path>" items.
// Categories are emitted in order (flat, single-nested, double-nested), each in
// document key order. On a primary, opcounters are repeated under mongodb.primary.
func FlattenServerStatus(doc Document, host string, primary bool) []MetricLine {
	var lines []MetricLine

	for _, cat := range flattenCategories {
		for _, f := range doc {
			if cat.keys[f.Key] {
				lines = cat.flatten(lines, host, f.Key, f.Value)
			}
		}
	}

	if primary {
		if v, ok := doc.Lookup("opcounters"); ok && v.IsDocument() {
			for _, f := range v.Document() {
				lines = append(lines, MetricLine{
					Host:  host,
					Key:   metricKey("primary", "opcounters", f.Key),
					Value: f.Value.String(),
				})
			}
		}
	}

	return lines
}

func flattenFlat(lines []MetricLine, host, key string, v Value) []MetricLine {
	return append(lines, MetricLine{Host: host, Key: metricKey(key), Value: v.String()})
}

func flattenSingleNested(lines []MetricLine, host, key string, v Value) []MetricLine {
	for _, f := range v.Document() {
		lines = append(lines, MetricLine{
			Host:  host,
			Key:   metricKey(key, f.Key),
			Value: f.Value.String(),
		})
	}
	return lines
}

func flattenDoubleNested(lines []MetricLine, host, key string, v Value) []MetricLine {
	for _, f := range v.Document() {
		if !doubleNestedSubKeys[f.Key] || !f.Value.IsDocument() {
			lines = append(lines, MetricLine{
				Host:  host,
				Key:   metricKey(key, f.Key),
				Value: f.Value.String(),
			})
			continue
		}
		for _, sub := range f.Value.Document() {
			lines = append(lines, MetricLine{
				Host:  host,
				Key:   metricKey(key, f.Key, sub.Key),
				Value: sub.Value.String(),
			})
		}
	}
	return lines
}
