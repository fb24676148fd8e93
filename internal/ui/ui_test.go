package ui

import (
	"strings"
	"testing"
)

func TestHealthMapping(t *testing.T) {
	services := map[string]Health{"active": Up, "inactive": Down, "": Unknown}
	for in, want := range services {
		if got := ServiceHealth(in); got != want {
			t.Errorf("ServiceHealth(%q) = %v, want %v", in, got, want)
		}
	}
	wan := map[string]Health{"normal": Up, "failover": Degraded, "manual": Degraded, "nowan": Down, "unknown": Unknown}
	for in, want := range wan {
		if got := WANHealth(in); got != want {
			t.Errorf("WANHealth(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDot(t *testing.T) {
	for _, h := range []Health{Up, Down, Degraded, Unknown} {
		if got := Dot(h); !strings.Contains(got, "●") {
			t.Errorf("Dot(%v) = %q", h, got)
		}
	}
}

func TestPaintAndBold(t *testing.T) {
	for _, h := range []Health{Up, Down, Degraded, Unknown} {
		if got := Paint(h, "active"); !strings.Contains(got, "active") {
			t.Errorf("Paint(%v) = %q", h, got)
		}
	}
	if got := Bold("Services"); !strings.Contains(got, "Services") {
		t.Errorf("Bold = %q", got)
	}
}

func TestSection(t *testing.T) {
	out := Section("Services", "tor active", 40)
	if !strings.Contains(out, "Services") || !strings.Contains(out, "tor active") {
		t.Errorf("Section = %q", out)
	}
	if !strings.Contains(out, "╭") {
		t.Error("Section missing rounded border")
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		pct    float64
		filled int
		label  string
	}{
		{0, 0, "0.0%"},
		{50, 5, "50.0%"},
		{100, 10, "100.0%"},
		{140, 10, "100.0%"},
		{-3, 0, "0.0%"},
	}
	for _, tt := range tests {
		got := Bar(tt.pct, 10)
		if n := strings.Count(got, "█"); n != tt.filled {
			t.Errorf("Bar(%v) filled = %d, want %d", tt.pct, n, tt.filled)
		}
		if n := strings.Count(got, "█") + strings.Count(got, "░"); n != 10 {
			t.Errorf("Bar(%v) width = %d, want 10", tt.pct, n)
		}
		if !strings.Contains(got, tt.label) {
			t.Errorf("Bar(%v) = %q, want label %q", tt.pct, got, tt.label)
		}
	}
}

func TestMegabytes(t *testing.T) {
	tests := map[float64]string{
		12.5:    "12.50 MB",
		2048:    "2.00 GB",
		3145728: "3.00 TB",
	}
	for in, want := range tests {
		if got := Megabytes(in); got != want {
			t.Errorf("Megabytes(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRow(t *testing.T) {
	got := Row("Exit IP", "1.2.3.4", "WAN", "normal", 60)
	for _, want := range []string{"Exit IP:", "1.2.3.4", "WAN:", "normal"} {
		if !strings.Contains(got, want) {
			t.Errorf("Row missing %q: %q", want, got)
		}
	}
	if single := Row("Profiles", "2", "", "", 60); strings.Contains(single, "  :") {
		t.Errorf("single Row = %q", single)
	}
}

func TestTable(t *testing.T) {
	out := Table([]string{"IFACE", "RX"}, [][]string{{"eth0", "1.50 MB"}, {"wlan0", "0.00 MB"}})
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "eth0   1.50 MB") {
		t.Errorf("row = %q, want aligned columns", lines[1])
	}
}

func TestSteps(t *testing.T) {
	if !strings.Contains(StepOK("Tor restarted."), "✔") {
		t.Error("StepOK missing check")
	}
	if !strings.Contains(StepFail("Invalid interface."), "✘") {
		t.Error("StepFail missing cross")
	}
	if !strings.Contains(Warn("pihole unavailable"), "⚠") {
		t.Error("Warn missing sign")
	}
	if !strings.Contains(Error("connection refused"), "connection refused") {
		t.Error("Error missing message")
	}
}
