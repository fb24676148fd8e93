// Package metrics exposes router status in the Prometheus text format. Every
// scrape takes a fresh snapshot; nothing is retained between scrapes.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torrouter/torrouter/internal/status"
)

const namespace = "torrouter"

// Snapshotter produces status snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context) status.Snapshot
}

var (
	serviceUp = prometheus.NewDesc(namespace+"_service_up",
		"Whether the systemd unit behind a dashboard service is active.", []string{"service"}, nil)
	vpnConnected = prometheus.NewDesc(namespace+"_vpn_connected",
		"Whether any WireGuard interface is up or OpenVPN is running.", nil, nil)
	wireguardInterfaces = prometheus.NewDesc(namespace+"_vpn_wireguard_interfaces",
		"Number of WireGuard interfaces.", nil, nil)
	vpnProfiles = prometheus.NewDesc(namespace+"_vpn_profiles",
		"Number of stored VPN client profiles.", nil, nil)
	torExitAvailable = prometheus.NewDesc(namespace+"_tor_exit_available",
		"Whether the Tor exit address could be determined.", nil, nil)
	cpuPercent = prometheus.NewDesc(namespace+"_cpu_percent",
		"CPU utilisation over a short sampling window.", nil, nil)
	memoryTotal = prometheus.NewDesc(namespace+"_memory_total_megabytes",
		"Total memory.", nil, nil)
	memoryUsed = prometheus.NewDesc(namespace+"_memory_used_megabytes",
		"Memory in use (total minus available).", nil, nil)
	memoryPercent = prometheus.NewDesc(namespace+"_memory_used_percent",
		"Memory in use as a percentage of total.", nil, nil)
	rxBytes = prometheus.NewDesc(namespace+"_network_receive_bytes_total",
		"Bytes received since boot.", []string{"interface"}, nil)
	txBytes = prometheus.NewDesc(namespace+"_network_transmit_bytes_total",
		"Bytes transmitted since boot.", []string{"interface"}, nil)
	piholeUp = prometheus.NewDesc(namespace+"_pihole_up",
		"Whether the Pi-hole API answered.", nil, nil)
	piholeQueries = prometheus.NewDesc(namespace+"_pihole_dns_queries_today",
		"DNS queries seen by Pi-hole today.", nil, nil)
	piholeBlocked = prometheus.NewDesc(namespace+"_pihole_ads_blocked_today",
		"DNS queries blocked by Pi-hole today.", nil, nil)
	piholePercent = prometheus.NewDesc(namespace+"_pihole_ads_blocked_percent",
		"Share of DNS queries blocked today.", nil, nil)
	wanState = prometheus.NewDesc(namespace+"_wan_state",
		"Current WAN link mode; the active mode reports 1.", []string{"state"}, nil)
)

var wanStates = []string{status.WANNormal, status.WANFailover, status.WANNoWAN, status.WANManual, status.WANUnknown}

// Collector implements prometheus.Collector over a Snapshotter.
type Collector struct {
	src     Snapshotter
	timeout time.Duration
}

// NewCollector bounds each scrape's snapshot by timeout.
func NewCollector(src Snapshotter, timeout time.Duration) *Collector {
	return &Collector{src: src, timeout: timeout}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		serviceUp, vpnConnected, wireguardInterfaces, vpnProfiles, torExitAvailable,
		cpuPercent, memoryTotal, memoryUsed, memoryPercent, rxBytes, txBytes,
		piholeUp, piholeQueries, piholeBlocked, piholePercent, wanState,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	s := c.src.Snapshot(ctx)

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	for name, state := range s.Services {
		gauge(serviceUp, boolValue(state == status.Active), name)
	}
	gauge(vpnConnected, boolValue(s.VPN.Connected))
	gauge(wireguardInterfaces, float64(len(s.VPN.WireGuardInterfaces)))
	gauge(vpnProfiles, float64(len(s.VPNProfiles)))
	gauge(torExitAvailable, boolValue(s.TorExitIP != status.TorUnavailable && s.TorExitIP != status.TorUnknown))
	gauge(cpuPercent, s.CPUPercent)
	gauge(memoryTotal, float64(s.Memory.TotalMB))
	gauge(memoryUsed, float64(s.Memory.UsedMB))
	gauge(memoryPercent, s.Memory.Percent)
	for iface, n := range s.Network {
		counter(rxBytes, float64(n.RxBytes), iface)
		counter(txBytes, float64(n.TxBytes), iface)
	}
	gauge(piholeUp, boolValue(s.Pihole.Available))
	if s.Pihole.Available {
		gauge(piholeQueries, float64(deref(s.Pihole.DNSQueriesToday)))
		gauge(piholeBlocked, float64(deref(s.Pihole.AdsBlockedToday)))
		gauge(piholePercent, deref(s.Pihole.AdsPercentage))
	}
	for _, st := range wanStates {
		gauge(wanState, boolValue(s.WANState == st), st)
	}
}

// Handler serves the collector from a private registry.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func deref[T int64 | float64](p *T) T {
	if p == nil {
		return 0
	}
	return *p
}
