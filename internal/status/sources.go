package status

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"golang.zx2c4.com/wireguard/wgctrl"

	"github.com/torrouter/torrouter/internal/config"
	"github.com/torrouter/torrouter/internal/profiles"
	"github.com/torrouter/torrouter/internal/runner"
)

// CPUTimes is an aggregate jiffy sample. Idle includes iowait.
type CPUTimes struct {
	Idle  float64
	Total float64
}

type CPUSampler interface {
	SampleCPU(ctx context.Context) (CPUTimes, error)
}

// MemoryStat is in bytes.
type MemoryStat struct {
	Total     uint64
	Available uint64
}

type MemoryReader interface {
	ReadMemory(ctx context.Context) (MemoryStat, error)
}

type NetCounters struct {
	RxBytes uint64
	TxBytes uint64
}

type NetCounterReader interface {
	ReadNetCounters(ctx context.Context) (map[string]NetCounters, error)
}

// TunnelLister returns the names of the up WireGuard interfaces.
type TunnelLister interface {
	WireGuardInterfaces(ctx context.Context) ([]string, error)
}

// ProcessFinder reports whether a process with exactly this name runs.
type ProcessFinder interface {
	Running(ctx context.Context, name string) (bool, error)
}

type ProfileLister interface {
	List() ([]string, error)
}

// Sources are the collaborators an Aggregator queries.
type Sources struct {
	Runner    runner.Runner
	CPU       CPUSampler
	Memory    MemoryReader
	Network   NetCounterReader
	Tunnels   TunnelLister
	Processes ProcessFinder
	Profiles  ProfileLister

	// TorClient reaches the exit-IP echo service through the Tor proxy.
	TorClient *http.Client
	// HTTP reaches local APIs directly.
	HTTP      *http.Client
}

// DefaultSources wires the live host implementations.
func DefaultSources(cfg *config.Config) Sources {
	host := Host{}
	return Sources{
		Runner:    runner.Exec{},
		CPU:       host,
		Memory:    host,
		Network:   host,
		Tunnels:   WireGuard{},
		Processes: host,
		Profiles:  &profiles.Store{Dir: cfg.ProfileDir},
		TorClient: NewTorClient(cfg.Status.TorProxy, cfg.Status.TorConnectTimeout.Duration, cfg.Status.TorTimeout.Duration),
		HTTP:      &http.Client{Timeout: cfg.Status.PiholeTimeout.Duration},
	}
}

// NewTorClient returns a client that dials through the SOCKS5 proxy at addr.
// Host names are resolved by the proxy.
func NewTorClient(addr string, connectTimeout, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyURL(&url.URL{Scheme: "socks5", Host: addr}),
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: connectTimeout,
			DisableKeepAlives:   true,
		},
	}
}

// Host reads counters from the running kernel via gopsutil.
type Host struct{}

func (Host) SampleCPU(ctx context.Context) (CPUTimes, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUTimes{}, fmt.Errorf("read cpu times: %w", err)
	}
	if len(times) == 0 {
		return CPUTimes{}, fmt.Errorf("read cpu times: no aggregate line")
	}
	t := times[0]
	idle := t.Idle + t.Iowait
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	return CPUTimes{Idle: idle, Total: total}, nil
}

func (Host) ReadMemory(ctx context.Context) (MemoryStat, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStat{}, fmt.Errorf("read memory: %w", err)
	}
	return MemoryStat{Total: vm.Total, Available: vm.Available}, nil
}

func (Host) ReadNetCounters(ctx context.Context) (map[string]NetCounters, error) {
	stats, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("read net counters: %w", err)
	}
	out := make(map[string]NetCounters, len(stats))
	for _, s := range stats {
		out[s.Name] = NetCounters{RxBytes: s.BytesRecv, TxBytes: s.BytesSent}
	}
	return out, nil
}

func (Host) Running(ctx context.Context, name string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}
	for _, p := range procs {
		// Processes can exit between listing and reading their name.
		n, err := p.NameWithContext(ctx)
		if err == nil && n == name {
			return true, nil
		}
	}
	return false, nil
}

// WireGuard lists kernel WireGuard devices over netlink.
type WireGuard struct{}

func (WireGuard) WireGuardInterfaces(ctx context.Context) ([]string, error) {
	c, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("open wgctrl: %w", err)
	}
	defer c.Close()

	devices, err := c.Devices()
	if err != nil {
		return nil, fmt.Errorf("list wireguard devices: %w", err)
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names, nil
}
