// Package status assembles point-in-time snapshots of the router's health
// from the service supervisor, kernel counters, the VPN subsystem, the Tor
// proxy, the Pi-hole API and the WAN state marker.
package status

// Service states.
const (
	Active   = "active"
	Inactive = "inactive"
)

// Tor exit sentinels.
const (
	TorUnavailable = "unavailable"
	TorUnknown     = "unknown"
)

// WAN link modes as written to the marker file by the failover manager.
const (
	WANNormal   = "normal"
	WANFailover = "failover"
	WANNoWAN    = "nowan"
	WANManual   = "manual"
	WANUnknown  = "unknown"
)

// Snapshot is one poll's view of the router. Every field is always present
// in its JSON form.
type Snapshot struct {
	Services    map[string]string    `json:"services"`
	VPN         VPNStatus            `json:"vpn"`
	VPNProfiles []string             `json:"vpn_profiles"`
	TorExitIP   string               `json:"tor_exit_ip"`
	CPUPercent  float64              `json:"cpu_percent"`
	Memory      Memory               `json:"memory"`
	Network     map[string]Interface `json:"network"`
	Pihole      PiholeStats          `json:"pihole"`
	WANState    string               `json:"wan_state"`
	Timestamp   int64                `json:"timestamp"`
}

type VPNStatus struct {
	WireGuardInterfaces []string `json:"wireguard_interfaces"`
	OpenVPN             string   `json:"openvpn"`
	Connected           bool     `json:"connected"`
}

type Memory struct {
	TotalMB int64   `json:"total_mb"`
	UsedMB  int64   `json:"used_mb"`
	FreeMB  int64   `json:"free_mb"`
	Percent float64 `json:"percent"`
}

// Interface holds cumulative byte counters since boot.
type Interface struct {
	RxBytes uint64  `json:"rx_bytes"`
	TxBytes uint64  `json:"tx_bytes"`
	RxMB    float64 `json:"rx_mb"`
	TxMB    float64 `json:"tx_mb"`
}

// PiholeStats carries the numeric fields only when Available is true.
type PiholeStats struct {
	Available       bool     `json:"available"`
	DNSQueriesToday *int64   `json:"dns_queries_today,omitempty"`
	AdsBlockedToday *int64   `json:"ads_blocked_today,omitempty"`
	AdsPercentage   *float64 `json:"ads_percentage,omitempty"`
}

// empty returns a snapshot holding every source's failure sentinel.
func empty() Snapshot {
	return Snapshot{
		Services: map[string]string{},
		VPN: VPNStatus{
			WireGuardInterfaces: []string{},
			OpenVPN:             Inactive,
		},
		VPNProfiles: []string{},
		TorExitIP:   TorUnavailable,
		Network:     map[string]Interface{},
		WANState:    WANUnknown,
	}
}
