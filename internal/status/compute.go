package status

import (
	"math"
	"slices"
)

const bytesPerMB = 1 << 20

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// cpuUsage is the busy share between two samples, in percent with one
// decimal. No elapsed time yields 0.
func cpuUsage(a, b CPUTimes) float64 {
	total := b.Total - a.Total
	if total <= 0 {
		return 0
	}
	idle := b.Idle - a.Idle
	pct := 100 * (total - idle) / total
	return round(min(max(pct, 0), 100), 1)
}

func memoryFrom(m MemoryStat) Memory {
	avail := min(m.Available, m.Total)
	used := m.Total - avail
	out := Memory{
		TotalMB: int64(math.Round(float64(m.Total) / bytesPerMB)),
		UsedMB:  int64(math.Round(float64(used) / bytesPerMB)),
		FreeMB:  int64(math.Round(float64(avail) / bytesPerMB)),
	}
	if m.Total > 0 {
		out.Percent = round(100*float64(used)/float64(m.Total), 1)
	}
	return out
}

// networkFrom keeps only the allow-listed interfaces that exist.
func networkFrom(counters map[string]NetCounters, allow []string) map[string]Interface {
	out := make(map[string]Interface)
	for name, c := range counters {
		if !slices.Contains(allow, name) {
			continue
		}
		out[name] = Interface{
			RxBytes: c.RxBytes,
			TxBytes: c.TxBytes,
			RxMB:    round(float64(c.RxBytes)/bytesPerMB, 2),
			TxMB:    round(float64(c.TxBytes)/bytesPerMB, 2),
		}
	}
	return out
}

// wanState maps the marker contents to a known mode.
func wanState(raw string) string {
	switch raw {
	case WANNormal, WANFailover, WANNoWAN, WANManual:
		return raw
	}
	return WANUnknown
}
