package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/torrouter/torrouter/internal/control"
	"github.com/torrouter/torrouter/internal/tui"
)

func controlAction(globals *CLI, title string, req control.Request) tui.Action {
	return tui.Action{
		Title: title,
		Send: func(ctx context.Context) (control.Result, error) {
			return globals.client().Control(ctx, req)
		},
	}
}

func dispatch(globals *CLI, title string, req control.Request) error {
	return tui.Run(context.Background(), controlAction(globals, title, req))
}

// CircuitCmd asks Tor for a fresh circuit.
type CircuitCmd struct{}

func (c *CircuitCmd) Run(globals *CLI) error {
	return dispatch(globals, "Requesting a new Tor circuit",
		control.Request{Action: string(control.KindNewCircuit)})
}

// TorCmd groups Tor service actions.
type TorCmd struct {
	Restart TorRestartCmd `cmd:"" help:"Restart the Tor service."`
}

type TorRestartCmd struct{}

func (c *TorRestartCmd) Run(globals *CLI) error {
	return dispatch(globals, "Restarting Tor",
		control.Request{Action: string(control.KindTorRestart)})
}

// VPNCmd groups VPN actions.
type VPNCmd struct {
	Connect    VPNConnectCmd    `cmd:"" help:"Connect using a stored profile."`
	Disconnect VPNDisconnectCmd `cmd:"" help:"Tear down the VPN."`
	Upload     VPNUploadCmd     `cmd:"" help:"Upload a .conf or .ovpn profile."`
	Ls         VPNLsCmd         `cmd:"" help:"List stored profiles. Reads a full status snapshot, so it can take up to ~15s while the Tor exit check runs."`
}

type VPNConnectCmd struct {
	Profile string `arg:"" help:"Profile file name, e.g. home.conf."`
}

func (c *VPNConnectCmd) Run(globals *CLI) error {
	return dispatch(globals, "Connecting VPN with "+c.Profile,
		control.Request{Action: string(control.KindVPNConnect), Profile: c.Profile})
}

type VPNDisconnectCmd struct{}

func (c *VPNDisconnectCmd) Run(globals *CLI) error {
	return dispatch(globals, "Disconnecting VPN",
		control.Request{Action: string(control.KindVPNDisconnect)})
}

type VPNUploadCmd struct {
	Path    string `arg:"" help:"Local profile file." type:"existingfile"`
	Connect bool   `help:"Connect with the profile once it is stored."`
}

func (c *VPNUploadCmd) Run(globals *CLI) error {
	name := filepath.Base(c.Path)
	actions := []tui.Action{{
		Title: "Uploading " + name,
		Send: func(ctx context.Context) (control.Result, error) {
			return globals.client().Upload(ctx, c.Path)
		},
	}}
	if c.Connect {
		actions = append(actions, controlAction(globals, "Connecting VPN with "+name,
			control.Request{Action: string(control.KindVPNConnect), Profile: name}))
	}
	return tui.Run(context.Background(), actions...)
}

// VPNLsCmd prints the profile list from /api/status. There is no cheaper
// endpoint, so it waits on the same CPU sample and Tor check as status.
type VPNLsCmd struct{}

func (c *VPNLsCmd) Run(globals *CLI) error {
	snap, err := globals.client().Status(context.Background())
	if err != nil {
		return err
	}
	if len(snap.VPNProfiles) == 0 {
		fmt.Fprintln(os.Stderr, "No VPN profiles uploaded.")
		return nil
	}
	for _, p := range snap.VPNProfiles {
		fmt.Println(p)
	}
	return nil
}

// WANCmd groups WAN actions.
type WANCmd struct {
	Primary WANPrimaryCmd `cmd:"" help:"Make an interface the primary uplink."`
}

type WANPrimaryCmd struct {
	Interface string `arg:"" help:"Interface name, e.g. eth0 or wlan0."`
}

func (c *WANPrimaryCmd) Run(globals *CLI) error {
	return dispatch(globals, "Setting primary WAN to "+c.Interface,
		control.Request{Action: string(control.KindWANSetPrimary), Interface: c.Interface})
}

// FirewallCmd groups firewall actions.
type FirewallCmd struct {
	Reload FirewallReloadCmd `cmd:"" help:"Reload the firewall rules."`
}

type FirewallReloadCmd struct{}

func (c *FirewallReloadCmd) Run(globals *CLI) error {
	return dispatch(globals, "Reloading firewall",
		control.Request{Action: string(control.KindFirewallReload)})
}
