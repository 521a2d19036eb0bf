package lucky

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Shape identifies which payload layout produced a set of records.
type Shape int

const (
	ShapeNone Shape = iota
	ShapeRuleList
	ShapeProxyList
	ShapeStatistics
	ShapeAggregate
)

func (s Shape) String() string {
	switch s {
	case ShapeRuleList:
		return "rule_list"
	case ShapeProxyList:
		return "proxy_list"
	case ShapeStatistics:
		return "statistics"
	case ShapeAggregate:
		return "aggregate"
	default:
		return "none"
	}
}

// shapeDecoder turns the top-level payload into records, or nil when the
// payload does not have its shape.
type shapeDecoder struct {
	shape  Shape
	decode func(top map[string]json.RawMessage, source string) []ServiceRecord
}

// decoders are tried in priority order; the first non-empty result wins.
var decoders = []shapeDecoder{
	{ShapeRuleList, decodeRuleList},
	{ShapeProxyList, decodeProxyList},
	{ShapeStatistics, decodeStatistics},
	{ShapeAggregate, decodeAggregate},
}

// DecodeServices normalizes a device payload. Unrecognized or malformed
// payloads yield ShapeNone and no records.
func DecodeServices(data []byte, source string) (Shape, []ServiceRecord) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || len(top) == 0 {
		return ShapeNone, nil
	}

	for _, d := range decoders {
		if records := d.decode(top, source); len(records) > 0 {
			return d.shape, records
		}
	}
	return ShapeNone, nil
}

// count accepts JSON numbers, numeric strings and null. Anything else is 0.
type count int64

func (c *count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*c = 0
			return nil
		}
		b = []byte(s)
	}

	f, err := strconv.ParseFloat(string(b), 64)
	switch {
	case err != nil || f < 0 || math.IsNaN(f):
		*c = 0
	case f >= math.MaxInt64:
		*c = math.MaxInt64
	default:
		*c = count(f)
	}
	return nil
}

type proxyEntry struct {
	Key            string `json:"Key"`
	Remark         string `json:"Remark"`
	Connections    count  `json:"Connections"`
	TrafficIn      count  `json:"TrafficIn"`
	TrafficOut     count  `json:"TrafficOut"`
	Enable         *bool  `json:"Enable"`
	WebServiceType string `json:"WebServiceType"`
}

type ruleEntry struct {
	RuleName  string       `json:"RuleName"`
	RuleKey   string       `json:"RuleKey"`
	ProxyList []proxyEntry `json:"ProxyList"`
}

type statEntry struct {
	Connections count                `json:"Connections"`
	TrafficIn   count                `json:"TrafficIn"`
	TrafficOut  count                `json:"TrafficOut"`
	ProxyList   map[string]statEntry `json:"ProxyList"`
}

func (p proxyEntry) record() ServiceRecord {
	enabled := true
	if p.Enable != nil {
		enabled = *p.Enable
	}
	return ServiceRecord{
		Key:           p.Key,
		Label:         p.Remark,
		Connections:   int64(p.Connections),
		TrafficIn:     int64(p.TrafficIn),
		TrafficOut:    int64(p.TrafficOut),
		ServiceType:   p.WebServiceType,
		DeviceEnabled: enabled,
	}
}

// field decodes one top-level key, looking it up case-insensitively as
// encoding/json does for struct fields.
func field(top map[string]json.RawMessage, name string, v any) bool {
	raw, ok := top[name]
	if !ok {
		for k, r := range top {
			if strings.EqualFold(k, name) {
				raw, ok = r, true
				break
			}
		}
	}
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func decodeStatMap(top map[string]json.RawMessage) map[string]statEntry {
	var raw map[string]json.RawMessage
	if !field(top, "statistics", &raw) {
		return nil
	}

	// Decode entries one by one so a single odd entry does not hide the rest.
	stats := make(map[string]statEntry, len(raw))
	for key, msg := range raw {
		var entry statEntry
		if err := json.Unmarshal(msg, &entry); err != nil {
			continue
		}
		stats[key] = entry
	}
	return stats
}

func decodeRuleList(top map[string]json.RawMessage, _ string) []ServiceRecord {
	var rules []ruleEntry
	if !field(top, "ruleList", &rules) {
		return nil
	}
	stats := decodeStatMap(top)

	var records []ServiceRecord
	for _, rule := range rules {
		ruleStats, hasRuleStats := stats[rule.RuleKey]
		for _, proxy := range rule.ProxyList {
			rec := proxy.record()
			rec.Rule = rule.RuleName
			rec.Alternates = []string{rule.RuleName, rule.RuleKey}

			if hasRuleStats {
				if s, ok := ruleStats.ProxyList[proxy.Key]; ok {
					rec.Connections = int64(s.Connections)
					rec.TrafficIn = int64(s.TrafficIn)
					rec.TrafficOut = int64(s.TrafficOut)
				}
			}
			records = append(records, rec)
		}
	}
	return records
}

func decodeProxyList(top map[string]json.RawMessage, _ string) []ServiceRecord {
	var proxies []proxyEntry
	if !field(top, "ProxyList", &proxies) {
		return nil
	}

	records := make([]ServiceRecord, 0, len(proxies))
	for _, p := range proxies {
		if p.Key == "" && p.Remark == "" {
			continue
		}
		records = append(records, p.record())
	}
	return records
}

func decodeStatistics(top map[string]json.RawMessage, _ string) []ServiceRecord {
	stats := decodeStatMap(top)
	if len(stats) == 0 {
		return nil
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var records []ServiceRecord
	for _, key := range keys {
		entry := stats[key]
		if len(entry.ProxyList) == 0 {
			records = append(records, ServiceRecord{
				Key:           key,
				Connections:   int64(entry.Connections),
				TrafficIn:     int64(entry.TrafficIn),
				TrafficOut:    int64(entry.TrafficOut),
				DeviceEnabled: true,
			})
			continue
		}

		proxyKeys := make([]string, 0, len(entry.ProxyList))
		for k := range entry.ProxyList {
			proxyKeys = append(proxyKeys, k)
		}
		sort.Strings(proxyKeys)

		for _, pk := range proxyKeys {
			p := entry.ProxyList[pk]
			records = append(records, ServiceRecord{
				Key:           pk,
				Rule:          key,
				Alternates:    []string{key},
				Connections:   int64(p.Connections),
				TrafficIn:     int64(p.TrafficIn),
				TrafficOut:    int64(p.TrafficOut),
				DeviceEnabled: true,
			})
		}
	}
	return records
}

func decodeAggregate(top map[string]json.RawMessage, source string) []ServiceRecord {
	var total count
	if !field(top, "Connections", &total) {
		return nil
	}

	rec := ServiceRecord{
		Key:           source,
		Connections:   int64(total),
		DeviceEnabled: true,
	}
	var in, out count
	if field(top, "TrafficIn", &in) {
		rec.TrafficIn = int64(in)
	}
	if field(top, "TrafficOut", &out) {
		rec.TrafficOut = int64(out)
	}
	return []ServiceRecord{rec}
}
