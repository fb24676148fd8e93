package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/torrouter/torrouter/internal/agent"
	"github.com/torrouter/torrouter/internal/control"
	"github.com/torrouter/torrouter/internal/ui"
)

// ControlCmd dispatches one action through the same validation and trigger
// path the HTTP API uses.
type ControlCmd struct {
	Action    string `arg:"" help:"Action name, e.g. tor_new_circuit or vpn-connect."`
	Profile   string `short:"p" help:"VPN profile for vpn_connect."`
	Interface string `short:"i" name:"interface" help:"WAN interface for wan_set_primary."`
	File      string `short:"f" help:"Profile file for vpn_upload." type:"existingfile"`
	JSON      bool   `help:"Print the result as JSON."`
}

func (c *ControlCmd) Run(globals *CLI) error {
	cfg, log, closer, err := globals.load()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	req := control.Request{Action: c.Action, Profile: c.Profile, Interface: c.Interface}
	if c.File != "" {
		f, err := os.Open(c.File)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		req.Upload = &control.Upload{Filename: filepath.Base(c.File), Body: f}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res := agent.New(cfg, log).Dispatcher().Dispatch(ctx, req)
	if c.JSON {
		if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Println(formatResult(res))
	}
	if !res.OK {
		return errors.New("action failed")
	}
	return nil
}

// formatResult renders res as a single status line.
func formatResult(res control.Result) string {
	if res.OK {
		return ui.StepOK(res.Message)
	}
	msg := res.Message
	if res.TimedOut {
		msg += " " + ui.Subtle("(timed out)")
	} else if res.ExitCode != nil {
		msg += " " + ui.Subtle(fmt.Sprintf("(exit %d)", *res.ExitCode))
	}
	return ui.StepFail(msg)
}
