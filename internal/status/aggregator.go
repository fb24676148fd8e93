package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/torrouter/torrouter/internal/config"
	"github.com/torrouter/torrouter/internal/runner"
)

// maxBody caps responses read from the Tor echo service and Pi-hole.
const maxBody = 1 << 20

// Aggregator builds snapshots. It keeps no state between calls and is safe
// for concurrent use.
type Aggregator struct {
	cfg       config.StatusConfig
	systemctl string
	src       Sources
	log       *slog.Logger
	now       func() time.Time
}

// New returns an Aggregator reading from src.
func New(cfg *config.Config, src Sources, log *slog.Logger) *Aggregator {
	return &Aggregator{
		cfg:       cfg.Status,
		systemctl: cfg.Systemctl,
		src:       src,
		log:       log,
		now:       time.Now,
	}
}

// Snapshot queries every source concurrently. A failing source contributes
// its sentinel value; Snapshot itself never fails.
func (a *Aggregator) Snapshot(ctx context.Context) Snapshot {
	snap := empty()

	// Each source writes only its own field, so the fields need no lock.
	var g errgroup.Group
	a.collect(&g, "services", func() { snap.Services = a.services(ctx) })
	a.collect(&g, "vpn", func() { snap.VPN = a.vpn(ctx) })
	a.collect(&g, "vpn_profiles", func() { snap.VPNProfiles = a.profiles() })
	a.collect(&g, "tor", func() { snap.TorExitIP = a.torExitIP(ctx) })
	a.collect(&g, "cpu", func() { snap.CPUPercent = a.cpu(ctx) })
	a.collect(&g, "memory", func() { snap.Memory = a.memory(ctx) })
	a.collect(&g, "network", func() { snap.Network = a.network(ctx) })
	a.collect(&g, "pihole", func() { snap.Pihole = a.pihole(ctx) })
	a.collect(&g, "wan", func() { snap.WANState = a.wan() })
	_ = g.Wait()

	snap.Timestamp = a.now().Unix()
	return snap
}

// collect runs fn on g, turning a panic into a warning so the field keeps
// its sentinel.
func (a *Aggregator) collect(g *errgroup.Group, source string, fn func()) {
	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				a.log.Warn("status source panicked", "source", source, "panic", fmt.Sprint(r))
			}
		}()
		fn()
		return nil
	})
}

func (a *Aggregator) warn(source string, err error) {
	a.log.Warn("status source unavailable", "source", source, "err", err)
}

func (a *Aggregator) services(ctx context.Context) map[string]string {
	out := make(map[string]string, len(a.cfg.Services))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, s := range a.cfg.Services {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			state := a.serviceState(ctx, s.Unit)
			mu.Lock()
			out[s.Name] = state
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func (a *Aggregator) serviceState(ctx context.Context, unit string) (state string) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Warn("status source panicked", "source", "services", "unit", unit, "panic", fmt.Sprint(r))
			state = Inactive
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ServiceTimeout.Duration)
	defer cancel()

	res, err := a.src.Runner.Run(ctx, runner.Command{Path: a.systemctl, Args: []string{"is-active", unit}})
	if err != nil {
		a.warn("services", fmt.Errorf("%s: %w", unit, err))
		return Inactive
	}
	if !res.Success() {
		return Inactive
	}
	return Active
}

func (a *Aggregator) vpn(ctx context.Context) VPNStatus {
	v := VPNStatus{WireGuardInterfaces: []string{}, OpenVPN: Inactive}

	names, err := a.src.Tunnels.WireGuardInterfaces(ctx)
	if err != nil {
		a.warn("wireguard", err)
	}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			v.WireGuardInterfaces = append(v.WireGuardInterfaces, n)
		}
	}

	running, err := a.src.Processes.Running(ctx, a.cfg.VPNDaemon)
	if err != nil {
		a.warn("openvpn", err)
	}
	if running {
		v.OpenVPN = Active
	}
	v.Connected = len(v.WireGuardInterfaces) > 0 || running
	return v
}

func (a *Aggregator) profiles() []string {
	names, err := a.src.Profiles.List()
	if err != nil {
		a.warn("vpn_profiles", err)
		return []string{}
	}
	return names
}

// torExitIP asks the echo service for our address as seen through Tor.
func (a *Aggregator) torExitIP(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.TorCheckURL, nil)
	if err != nil {
		a.warn("tor", err)
		return TorUnavailable
	}
	resp, err := a.src.TorClient.Do(req)
	if err != nil {
		a.warn("tor", err)
		return TorUnavailable
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.warn("tor", fmt.Errorf("echo service returned %s", resp.Status))
		return TorUnavailable
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		a.warn("tor", err)
		return TorUnavailable
	}

	var echo struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(body, &echo); err != nil {
		return TorUnknown
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(echo.IP))
	if err != nil {
		return TorUnknown
	}
	return addr.String()
}

// cpu takes two samples CPUSampleGap apart.
func (a *Aggregator) cpu(ctx context.Context) float64 {
	first, err := a.src.CPU.SampleCPU(ctx)
	if err != nil {
		a.warn("cpu", err)
		return 0
	}

	t := time.NewTimer(a.cfg.CPUSampleGap.Duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return 0
	case <-t.C:
	}

	second, err := a.src.CPU.SampleCPU(ctx)
	if err != nil {
		a.warn("cpu", err)
		return 0
	}
	return cpuUsage(first, second)
}

func (a *Aggregator) memory(ctx context.Context) Memory {
	m, err := a.src.Memory.ReadMemory(ctx)
	if err != nil {
		a.warn("memory", err)
		return Memory{}
	}
	return memoryFrom(m)
}

func (a *Aggregator) network(ctx context.Context) map[string]Interface {
	counters, err := a.src.Network.ReadNetCounters(ctx)
	if err != nil {
		a.warn("network", err)
		return map[string]Interface{}
	}
	return networkFrom(counters, a.cfg.Interfaces)
}

func (a *Aggregator) pihole(ctx context.Context) PiholeStats {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.PiholeTimeout.Duration)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.PiholeURL, nil)
	if err != nil {
		a.warn("pihole", err)
		return PiholeStats{}
	}
	resp, err := a.src.HTTP.Do(req)
	if err != nil {
		a.warn("pihole", err)
		return PiholeStats{}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.warn("pihole", fmt.Errorf("api returned %s", resp.Status))
		return PiholeStats{}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		a.warn("pihole", err)
		return PiholeStats{}
	}
	stats := parsePihole(body)
	if !stats.Available {
		a.warn("pihole", errors.New("summary is not a JSON object"))
	}
	return stats
}

func (a *Aggregator) wan() string {
	data, err := os.ReadFile(a.cfg.WANStateFile)
	if err != nil {
		if !os.IsNotExist(err) {
			a.warn("wan", err)
		}
		return WANUnknown
	}
	return wanState(strings.TrimSpace(string(data)))
}
