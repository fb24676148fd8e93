package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/torrouter/torrouter/internal/status"
	"github.com/torrouter/torrouter/internal/ui"
)

// renderDashboard renders the full dashboard view from dashData.
func renderDashboard(d dashData, width int) string {
	if width > ui.MaxWidth {
		width = ui.MaxWidth
	}
	contentWidth := max(width-4, 40) // border + padding

	if d.err != nil {
		return ui.Section("torrouterd", ui.Error(d.err.Error())+"\n"+ui.Subtle(d.url), contentWidth) +
			"\n" + footer(d)
	}

	sections := []string{
		renderRouterSection(d.snap, contentWidth),
		renderServicesSection(d.snap, contentWidth),
		renderSystemSection(d.snap, contentWidth),
	}
	if len(d.snap.Network) > 0 {
		sections = append(sections, renderNetworkSection(d.snap, contentWidth))
	}
	sections = append(sections, renderPiholeSection(d.snap, contentWidth))
	return strings.Join(sections, "\n") + "\n" + footer(d)
}

func footer(d dashData) string {
	s := "r refresh · q quit"
	if !d.fetched.IsZero() {
		s = fmt.Sprintf("updated %s (%dms) · %s", d.fetched.Format("15:04:05"), d.took.Milliseconds(), s)
	}
	return ui.Subtle(s)
}

func renderRouterSection(s status.Snapshot, width int) string {
	var lines []string

	tor := s.TorExitIP
	torHealth := ui.Up
	switch tor {
	case status.TorUnavailable:
		torHealth = ui.Down
	case status.TorUnknown:
		torHealth = ui.Degraded
	}
	wan := ui.Dot(ui.WANHealth(s.WANState)) + " " + s.WANState
	lines = append(lines, ui.Row("TOR EXIT", ui.Dot(torHealth)+" "+tor, "WAN", wan, width))

	vpn := ui.Dot(ui.Down) + " disconnected"
	if s.VPN.Connected {
		vpn = ui.Dot(ui.Up) + " connected"
	}
	var tunnels []string
	tunnels = append(tunnels, s.VPN.WireGuardInterfaces...)
	if s.VPN.OpenVPN == status.Active {
		tunnels = append(tunnels, "openvpn")
	}
	via := "-"
	if len(tunnels) > 0 {
		via = strings.Join(tunnels, ", ")
	}
	lines = append(lines, ui.Row("VPN", vpn, "VIA", via, width))

	profiles := "-"
	if len(s.VPNProfiles) > 0 {
		profiles = strings.Join(s.VPNProfiles, ", ")
	}
	lines = append(lines, ui.Row("PROFILES", profiles, "", "", width))

	return ui.Section("Router", strings.Join(lines, "\n"), width)
}

func renderServicesSection(s status.Snapshot, width int) string {
	var rows [][]string
	names := make([]string, 0, len(s.Services))
	for k := range s.Services {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, name := range names {
		state := s.Services[name]
		rows = append(rows, []string{name, ui.Dot(ui.ServiceHealth(state)) + " " + state})
	}
	return ui.Section("Services", ui.Table([]string{"NAME", "STATUS"}, rows), width)
}

func renderSystemSection(s status.Snapshot, width int) string {
	barWidth := max(width/2-12, 10)
	lines := []string{
		fmt.Sprintf("%-8s %s", "CPU", ui.Bar(s.CPUPercent, barWidth)),
		fmt.Sprintf("%-8s %s  %s", "MEMORY", ui.Bar(s.Memory.Percent, barWidth),
			ui.Subtle(fmt.Sprintf("%s / %s", ui.Megabytes(float64(s.Memory.UsedMB)), ui.Megabytes(float64(s.Memory.TotalMB))))),
	}
	return ui.Section("System", strings.Join(lines, "\n"), width)
}

func renderNetworkSection(s status.Snapshot, width int) string {
	var rows [][]string
	names := make([]string, 0, len(s.Network))
	for k := range s.Network {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, name := range names {
		iface := s.Network[name]
		rows = append(rows, []string{name, ui.Megabytes(iface.RxMB), ui.Megabytes(iface.TxMB)})
	}
	return ui.Section("Network", ui.Table([]string{"INTERFACE", "RX", "TX"}, rows), width)
}

func renderPiholeSection(s status.Snapshot, width int) string {
	p := s.Pihole
	if !p.Available {
		return ui.Section("Pi-hole", ui.Dot(ui.Down)+" unavailable", width)
	}
	lines := []string{
		ui.Row("QUERIES", formatCount(p.DNSQueriesToday), "BLOCKED", formatCount(p.AdsBlockedToday), width),
	}
	if p.AdsPercentage != nil {
		lines = append(lines, fmt.Sprintf("%-14s %s", "BLOCK RATE:", ui.Bar(*p.AdsPercentage, max(width/2-12, 10))))
	}
	return ui.Section("Pi-hole", strings.Join(lines, "\n"), width)
}

// formatCount groups thousands: 1234567 → "1,234,567".
func formatCount(n *int64) string {
	if n == nil {
		return "-"
	}
	s := fmt.Sprint(*n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
