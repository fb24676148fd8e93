package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/torrouter/torrouter/internal/config"
	"github.com/torrouter/torrouter/internal/profiles"
	"github.com/torrouter/torrouter/internal/runner"
)

// Dispatcher runs one action per call. Actions on the same subsystem are
// serialized; different subsystems run in parallel.
type Dispatcher struct {
	cfg      config.ControlConfig
	runner   runner.Runner
	profiles *profiles.Store
	log      *slog.Logger

	torMu      sync.Mutex
	vpnMu      sync.Mutex
	wanMu      sync.Mutex
	firewallMu sync.Mutex
}

// New returns a Dispatcher that stores uploads in store and runs triggers
// with r.
func New(cfg *config.Config, r runner.Runner, store *profiles.Store, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg.Control,
		runner:   r,
		profiles: store,
		log:      log,
	}
}

// Dispatch validates req and, if it passes, runs its trigger to completion.
// It always returns exactly one Result. Cancelling ctx does not stop a
// trigger that has started; only the configured trigger timeout does.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	start := time.Now()
	res := d.dispatch(context.WithoutCancel(ctx), req)
	d.log.Info("action dispatched",
		"action", req.Action,
		"ok", res.OK,
		"timed_out", res.TimedOut,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Result {
	kind, ok := ParseKind(req.Action)
	if !ok {
		return Result{Message: "Unknown action: " + req.Action, unknown: true}
	}

	t := d.cfg.Triggers
	switch kind {
	case KindNewCircuit:
		return d.locked(&d.torMu, func() Result {
			return d.run(ctx, t.NewCircuit, "")
		})

	case KindTorRestart:
		return d.locked(&d.torMu, func() Result {
			return d.run(ctx, t.TorRestart, "Tor restarted.")
		})

	case KindVPNConnect:
		profile := strings.TrimSpace(req.Profile)
		if err := ValidateProfileName(profile); err != nil {
			return rejected(rejectMessages[err])
		}
		res := d.locked(&d.vpnMu, func() Result {
			return d.run(ctx, t.VPNConnect, "", profile)
		})
		res.Profile = profile
		return res

	case KindVPNDisconnect:
		return d.locked(&d.vpnMu, func() Result {
			return d.run(ctx, t.VPNDisconnect, "VPN disconnected.")
		})

	case KindVPNUpload:
		return d.locked(&d.vpnMu, func() Result {
			return d.upload(req.Upload)
		})

	case KindWANSetPrimary:
		iface := strings.TrimSpace(req.Interface)
		if err := ValidateInterface(iface, d.cfg.WANInterfaces); err != nil {
			return rejected(rejectMessages[err])
		}
		res := d.locked(&d.wanMu, func() Result {
			return d.run(ctx, t.WANSetPrimary, "", iface)
		})
		res.Interface = iface
		return res

	case KindFirewallReload:
		return d.locked(&d.firewallMu, func() Result {
			return d.run(ctx, t.FirewallReload, "Firewall reloaded.")
		})
	}
	// ParseKind returned a Kind missing from the switch.
	return Result{Message: "Unknown action: " + req.Action, unknown: true}
}

func (d *Dispatcher) locked(mu *sync.Mutex, fn func() Result) Result {
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// command builds the argv for trigger with args appended as single tokens.
func (d *Dispatcher) command(trigger []string, args ...string) runner.Command {
	argv := append(append([]string{}, trigger...), args...)
	if d.cfg.UseSudo {
		return runner.Command{Path: d.cfg.Sudo, Args: append([]string{"-n"}, argv...)}
	}
	return runner.Command{Path: argv[0], Args: argv[1:]}
}

// run executes a trigger. On success the message is okMsg when set, the
// trimmed output otherwise.
func (d *Dispatcher) run(ctx context.Context, trigger []string, okMsg string, args ...string) Result {
	if len(trigger) == 0 {
		return rejected("Action is not configured.")
	}
	timeout := d.cfg.TriggerTimeout.Duration
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := d.command(trigger, args...)
	res, err := d.runner.Run(ctx, cmd)
	if err != nil {
		d.log.Error("trigger failed to start", "command", cmd.String(), "err", err)
		return rejected(fmt.Sprintf("Failed to run %s.", trigger[0]))
	}

	out := strings.TrimRight(res.Output, " \t\r\n")
	if res.TimedOut {
		msg := fmt.Sprintf("Timed out after %s.", timeout)
		if out != "" {
			msg = out + "\n" + msg
		}
		d.log.Warn("trigger timed out", "command", cmd.String(), "timeout", timeout)
		return Result{OK: false, Message: msg, TimedOut: true}
	}

	code := res.ExitCode
	if res.Success() {
		if okMsg != "" {
			out = okMsg
		}
		return Result{OK: true, Message: out, ExitCode: &code}
	}
	if out == "" {
		out = fmt.Sprintf("Command exited with status %d.", code)
	}
	d.log.Warn("trigger exited non-zero", "command", cmd.String(), "exit_code", code)
	return Result{OK: false, Message: out, ExitCode: &code}
}

func (d *Dispatcher) upload(u *Upload) Result {
	if u == nil || u.Body == nil {
		return rejected("No file uploaded.")
	}
	name, err := profiles.SanitizeName(u.Filename)
	if err != nil {
		return rejected("Only .conf and .ovpn files allowed.")
	}

	stored, err := d.profiles.Save(name, u.Body, d.cfg.MaxUploadBytes)
	switch {
	case errors.Is(err, profiles.ErrTooLarge):
		return rejected(fmt.Sprintf("Profile exceeds %d bytes.", d.cfg.MaxUploadBytes))
	case err != nil:
		d.log.Error("profile upload failed", "profile", name, "err", err)
		return Result{OK: false, Message: "Upload failed.", Profile: name}
	}
	d.log.Info("profile uploaded", "profile", stored)
	return Result{OK: true, Message: fmt.Sprintf("Profile '%s' uploaded.", stored), Profile: stored}
}
