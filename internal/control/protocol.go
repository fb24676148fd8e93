// Package control validates and runs the router's privileged maintenance
// actions.
package control

import (
	"io"
	"strings"
)

// Kind names an action on the wire.
type Kind string

const (
	KindNewCircuit     Kind = "tor_new_circuit"
	KindTorRestart     Kind = "tor_restart"
	KindVPNConnect     Kind = "vpn_connect"
	KindVPNDisconnect  Kind = "vpn_disconnect"
	KindVPNUpload      Kind = "vpn_upload"
	KindWANSetPrimary  Kind = "wan_set_primary"
	KindFirewallReload Kind = "firewall_reload"
)

// Kinds lists every action in display order.
var Kinds = []Kind{
	KindNewCircuit,
	KindTorRestart,
	KindVPNConnect,
	KindVPNDisconnect,
	KindVPNUpload,
	KindWANSetPrimary,
	KindFirewallReload,
}

var aliases = map[string]Kind{
	"new-circuit":     KindNewCircuit,
	"tor-restart":     KindTorRestart,
	"vpn-connect":     KindVPNConnect,
	"vpn-disconnect":  KindVPNDisconnect,
	"vpn-upload":      KindVPNUpload,
	"wan-set-primary": KindWANSetPrimary,
	"firewall-reload": KindFirewallReload,
}

// ParseKind resolves a wire name or its hyphenated alias.
func ParseKind(action string) (Kind, bool) {
	action = strings.TrimSpace(action)
	for _, k := range Kinds {
		if string(k) == action {
			return k, true
		}
	}
	k, ok := aliases[action]
	return k, ok
}

// Request is one action to perform.
type Request struct {
	Action    string `json:"action"`
	Profile   string `json:"profile,omitempty"`
	Interface string `json:"interface,omitempty"`

	// Upload is set for vpn_upload only. It never arrives as JSON.
	Upload *Upload `json:"-"`
}

// Upload is a client-supplied profile file.
type Upload struct {
	Filename string
	Body     io.Reader
}

// Result is reported for every Request.
type Result struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	Profile   string `json:"profile,omitempty"`
	Interface string `json:"interface,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	TimedOut  bool   `json:"timed_out,omitempty"`

	unknown bool
}

// Unrecognized reports a request whose action is not a known Kind.
func (r Result) Unrecognized() bool { return r.unknown }

func rejected(msg string) Result {
	return Result{OK: false, Message: msg}
}
