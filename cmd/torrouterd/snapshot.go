package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/torrouter/torrouter/internal/agent"
	"github.com/torrouter/torrouter/internal/status"
	"github.com/torrouter/torrouter/internal/ui"
)

// SnapshotCmd collects one snapshot without starting the server.
type SnapshotCmd struct {
	JSON bool `help:"Print the snapshot exactly as /api/status serves it."`
}

func (c *SnapshotCmd) Run(globals *CLI) error {
	cfg, log, closer, err := globals.load()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	snap := agent.New(cfg, log).Status().Snapshot(context.Background())
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	writeSnapshot(os.Stdout, snap)
	return nil
}

func good(s string) string  { return ui.Paint(ui.Up, s) }
func bad(s string) string   { return ui.Paint(ui.Down, s) }
func label(s string) string { return ui.Bold(s) }

func stateColour(state string) string {
	switch state {
	case status.Active, status.WANNormal:
		return good(state)
	case status.Inactive, status.WANNoWAN, status.TorUnavailable:
		return bad(state)
	}
	return ui.Paint(ui.Degraded, state)
}

// writeSnapshot prints snap as aligned plain text.
func writeSnapshot(w io.Writer, snap status.Snapshot) {
	fmt.Fprintf(w, "%s %s\n", label("Snapshot"), time.Unix(snap.Timestamp, 0).UTC().Format(time.RFC3339))

	fmt.Fprintln(w, label("Services"))
	services := make([]string, 0, len(snap.Services))
	for k := range snap.Services {
		services = append(services, k)
	}
	slices.Sort(services)
	for _, name := range services {
		fmt.Fprintf(w, "  %-12s %s\n", name, stateColour(snap.Services[name]))
	}

	vpn := bad("disconnected")
	if snap.VPN.Connected {
		vpn = good("connected")
	}
	fmt.Fprintf(w, "%s %s\n", label("VPN"), vpn)
	if len(snap.VPN.WireGuardInterfaces) > 0 {
		fmt.Fprintf(w, "  %-12s %s\n", "wireguard", strings.Join(snap.VPN.WireGuardInterfaces, ", "))
	}
	fmt.Fprintf(w, "  %-12s %s\n", "openvpn", stateColour(snap.VPN.OpenVPN))
	profiles := "-"
	if len(snap.VPNProfiles) > 0 {
		profiles = strings.Join(snap.VPNProfiles, ", ")
	}
	fmt.Fprintf(w, "  %-12s %s\n", "profiles", profiles)

	exit := snap.TorExitIP
	if exit == status.TorUnavailable || exit == status.TorUnknown {
		exit = stateColour(exit)
	}
	fmt.Fprintf(w, "%s %s\n", label("Tor exit"), exit)
	fmt.Fprintf(w, "%s %s\n", label("WAN"), stateColour(snap.WANState))

	fmt.Fprintf(w, "%s %.1f%%\n", label("CPU"), snap.CPUPercent)
	fmt.Fprintf(w, "%s %d/%d MB (%.1f%%)\n", label("Memory"), snap.Memory.UsedMB, snap.Memory.TotalMB, snap.Memory.Percent)

	if len(snap.Network) > 0 {
		fmt.Fprintln(w, label("Network"))
		ifaces := make([]string, 0, len(snap.Network))
		for k := range snap.Network {
			ifaces = append(ifaces, k)
		}
		slices.Sort(ifaces)
		for _, name := range ifaces {
			iface := snap.Network[name]
			fmt.Fprintf(w, "  %-12s rx %.2f MB  tx %.2f MB\n", name, iface.RxMB, iface.TxMB)
		}
	}

	if !snap.Pihole.Available {
		fmt.Fprintf(w, "%s %s\n", label("Pi-hole"), bad("unavailable"))
		return
	}
	fmt.Fprintf(w, "%s %d queries, %d blocked (%.1f%%)\n", label("Pi-hole"),
		deref(snap.Pihole.DNSQueriesToday), deref(snap.Pihole.AdsBlockedToday), deref(snap.Pihole.AdsPercentage))
}

func deref[T int64 | float64](p *T) T {
	if p == nil {
		return 0
	}
	return *p
}
