// Package config loads torrouterd settings from a TOML file, an optional
// dotenv file and the process environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultPath    = "/etc/tor-router/torrouterd.toml"
	DefaultEnvPath = "/etc/tor-router/torrouterd.env"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("200ms", "15s") in TOML.
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration { return Duration{d} }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the full daemon configuration.
type Config struct {
	Listen          string   `toml:"listen"`
	WebRoot         string   `toml:"web_root"`
	AllowedNetworks []string `toml:"allowed_networks"`
	Systemctl       string   `toml:"systemctl"`
	ProfileDir      string   `toml:"vpn_profile_dir"`

	Log     LogConfig     `toml:"log"`
	Status  StatusConfig  `toml:"status"`
	Control ControlConfig `toml:"control"`
	Metrics MetricsConfig `toml:"metrics"`
	Stream  StreamConfig  `toml:"stream"`
}

// LogConfig controls structured logging. An empty File logs to stdout only.
type LogConfig struct {
	File       string `toml:"file"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// ServiceUnit maps a dashboard service name to its systemd unit.
type ServiceUnit struct {
	Name string `toml:"name"`
	Unit string `toml:"unit"`
}

// StatusConfig drives the status aggregator's sources.
type StatusConfig struct {
	Services       []ServiceUnit `toml:"services"`
	ServiceTimeout Duration      `toml:"service_timeout"`
	Interfaces     []string      `toml:"interfaces"`
	CPUSampleGap   Duration      `toml:"cpu_sample_gap"`
	VPNDaemon      string        `toml:"vpn_daemon"`

	TorCheckURL       string   `toml:"tor_check_url"`
	TorProxy          string   `toml:"tor_proxy"`
	TorConnectTimeout Duration `toml:"tor_connect_timeout"`
	TorTimeout        Duration `toml:"tor_timeout"`

	PiholeURL     string   `toml:"pihole_url"`
	PiholeTimeout Duration `toml:"pihole_timeout"`

	WANStateFile string `toml:"wan_state_file"`
}

// Triggers holds the fixed argv prefix of every privileged operation. A
// validated value, when an action takes one, is appended as the final token.
type Triggers struct {
	NewCircuit     []string `toml:"new_circuit"`
	TorRestart     []string `toml:"tor_restart"`
	VPNConnect     []string `toml:"vpn_connect"`
	VPNDisconnect  []string `toml:"vpn_disconnect"`
	WANSetPrimary  []string `toml:"wan_set_primary"`
	FirewallReload []string `toml:"firewall_reload"`
}

// ControlConfig drives the action dispatcher.
type ControlConfig struct {
	UseSudo        bool     `toml:"use_sudo"`
	Sudo           string   `toml:"sudo"`
	TriggerTimeout Duration `toml:"trigger_timeout"`
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
	WANInterfaces  []string `toml:"wan_interfaces"`
	Triggers       Triggers `toml:"triggers"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool     `toml:"enabled"`
	Path          string   `toml:"path"`
	ScrapeTimeout Duration `toml:"scrape_timeout"`
}

// StreamConfig controls the websocket status stream.
type StreamConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

const scriptDir = "/usr/local/bin/tor-router.d"

// Default returns the configuration of a stock appliance.
func Default() *Config {
	return &Config{
		Listen: "127.0.0.1:8088",
		AllowedNetworks: []string{
			"127.0.0.0/8",
			"10.0.0.0/8",
			"172.16.0.0/12",
			"192.168.0.0/16",
			"::1/128",
			"fc00::/7",
		},
		Systemctl:  "/usr/bin/systemctl",
		ProfileDir: "/etc/tor-router/vpn",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Status: StatusConfig{
			Services: []ServiceUnit{
				{Name: "tor", Unit: "tor"},
				{Name: "dnsmasq", Unit: "dnsmasq"},
				{Name: "nginx", Unit: "nginx"},
				{Name: "pihole", Unit: "pihole-FTL"},
				{Name: "openvpn", Unit: "openvpn"},
			},
			ServiceTimeout:    D(5 * time.Second),
			Interfaces:        []string{"eth0", "wlan0", "eth1", "eth2", "eth3"},
			CPUSampleGap:      D(200 * time.Millisecond),
			VPNDaemon:         "openvpn",
			TorCheckURL:       "https://api.ipify.org?format=json",
			TorProxy:          "127.0.0.1:9050",
			TorConnectTimeout: D(10 * time.Second),
			TorTimeout:        D(15 * time.Second),
			PiholeURL:         "http://127.0.0.1:8080/api/stats/summary",
			PiholeTimeout:     D(5 * time.Second),
			WANStateFile:      "/run/tor-router/wan_state",
		},
		Control: ControlConfig{
			UseSudo:        true,
			Sudo:           "/usr/bin/sudo",
			TriggerTimeout: D(60 * time.Second),
			MaxUploadBytes: 1 << 20,
			WANInterfaces:  []string{"eth0", "wlan0"},
			Triggers: Triggers{
				NewCircuit:     []string{scriptDir + "/new_tor_circuit.sh"},
				TorRestart:     []string{"/usr/bin/systemctl", "restart", "tor"},
				VPNConnect:     []string{scriptDir + "/connect_vpn.sh"},
				VPNDisconnect:  []string{scriptDir + "/disconnect_vpn.sh"},
				WANSetPrimary:  []string{scriptDir + "/wan_manager.sh", "set-primary"},
				FirewallReload: []string{"/usr/local/bin/firewall.sh"},
			},
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			Path:          "/metrics",
			ScrapeTimeout: D(20 * time.Second),
		},
		Stream: StreamConfig{
			Enabled:  true,
			Interval: D(10 * time.Second),
		},
	}
}

// Load reads the TOML file at path on top of Default, then applies the dotenv
// file at envPath and the TORROUTER_* environment. Missing files are not an
// error.
func Load(path, envPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if envPath != "" {
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envPath, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TORROUTER_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("TORROUTER_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("TORROUTER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TORROUTER_USE_SUDO"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TORROUTER_USE_SUDO: %w", err)
		}
		c.Control.UseSudo = b
	}
	return nil
}

// Validate reports every impossible setting at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Listen == "" {
		errs = append(errs, "listen must not be empty")
	}
	if _, err := c.Prefixes(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.ProfileDir == "" {
		errs = append(errs, "vpn_profile_dir must not be empty")
	}
	for _, s := range c.Status.Services {
		if s.Name == "" || s.Unit == "" {
			errs = append(errs, "status.services entries need both name and unit")
			break
		}
	}

	positive := map[string]Duration{
		"status.service_timeout":     c.Status.ServiceTimeout,
		"status.cpu_sample_gap":      c.Status.CPUSampleGap,
		"status.tor_connect_timeout": c.Status.TorConnectTimeout,
		"status.tor_timeout":         c.Status.TorTimeout,
		"status.pihole_timeout":      c.Status.PiholeTimeout,
		"control.trigger_timeout":    c.Control.TriggerTimeout,
		"metrics.scrape_timeout":     c.Metrics.ScrapeTimeout,
		"stream.interval":            c.Stream.Interval,
	}
	positiveKeys := make([]string, 0, len(positive))
	for k := range positive {
		positiveKeys = append(positiveKeys, k)
	}
	slices.Sort(positiveKeys)
	for _, name := range positiveKeys {
		if positive[name].Duration <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}

	if c.Control.MaxUploadBytes <= 0 {
		errs = append(errs, "control.max_upload_bytes must be positive")
	}
	if len(c.Control.WANInterfaces) == 0 {
		errs = append(errs, "control.wan_interfaces must not be empty")
	}
	if c.Control.UseSudo && !filepath.IsAbs(c.Control.Sudo) {
		errs = append(errs, "control.sudo must be an absolute path")
	}
	t := c.Control.Triggers
	triggers := map[string][]string{
		"new_circuit":     t.NewCircuit,
		"tor_restart":     t.TorRestart,
		"vpn_connect":     t.VPNConnect,
		"vpn_disconnect":  t.VPNDisconnect,
		"wan_set_primary": t.WANSetPrimary,
		"firewall_reload": t.FirewallReload,
	}
	triggersKeys := make([]string, 0, len(triggers))
	for k := range triggers {
		triggersKeys = append(triggersKeys, k)
	}
	slices.Sort(triggersKeys)
	for _, name := range triggersKeys {
		argv := triggers[name]
		if len(argv) == 0 || !filepath.IsAbs(argv[0]) {
			errs = append(errs, "control.triggers."+name+" must start with an absolute program path")
		}
	}

	if len(errs) > 0 {
		return errors.New("invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}

// Prefixes parses AllowedNetworks.
func (c *Config) Prefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.AllowedNetworks))
	for _, n := range c.AllowedNetworks {
		p, err := netip.ParsePrefix(strings.TrimSpace(n))
		if err != nil {
			return nil, fmt.Errorf("allowed_networks: %w", err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes, nil
}

// Save writes c as TOML to path with owner-only permissions.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
