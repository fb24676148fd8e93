package status

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type piholeFields struct {
	queries *float64
	blocked *float64
	percent *float64
}

// piholeStrategy pulls whatever fields it recognizes from a decoded summary.
// It must tolerate any shape.
type piholeStrategy func(map[string]any) piholeFields

// piholeStrategies are tried in order; per field the first hit wins.
var piholeStrategies = []piholeStrategy{
	nestedSummary, // v6 /api/stats/summary
	legacySummary, // v5 api.php?summary
}

func nestedSummary(m map[string]any) piholeFields {
	q, ok := m["queries"].(map[string]any)
	if !ok {
		return piholeFields{}
	}
	return piholeFields{
		queries: number(q["total"]),
		blocked: number(q["blocked"]),
		percent: number(q["percent_blocked"]),
	}
}

func legacySummary(m map[string]any) piholeFields {
	return piholeFields{
		queries: number(m["dns_queries_today"]),
		blocked: number(m["ads_blocked_today"]),
		percent: number(m["ads_percentage_today"]),
	}
}

// number accepts JSON numbers and numeric strings, including the legacy
// API's thousands separators ("1,234").
func number(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return nil
		}
		f = n
	case float64:
		f = x
	case string:
		n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// parsePihole decodes a summary body. A body that is not a JSON object is
// reported as unavailable.
func parsePihole(body []byte) PiholeStats {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return PiholeStats{}
	}

	var merged piholeFields
	for _, s := range piholeStrategies {
		f := s(m)
		if merged.queries == nil {
			merged.queries = f.queries
		}
		if merged.blocked == nil {
			merged.blocked = f.blocked
		}
		if merged.percent == nil {
			merged.percent = f.percent
		}
	}

	queries := int64(math.Round(deref(merged.queries)))
	blocked := int64(math.Round(deref(merged.blocked)))
	percent := deref(merged.percent)
	return PiholeStats{
		Available:       true,
		DNSQueriesToday: &queries,
		AdsBlockedToday: &blocked,
		AdsPercentage:   &percent,
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
