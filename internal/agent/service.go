package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/kardianos/service"
)

// ServiceName is the system service name used by install and uninstall.
const ServiceName = "torrouterd"

// ServiceConfig describes torrouterd to the host's service manager. The
// installed unit runs "torrouterd serve" with the given arguments appended.
func ServiceConfig(args []string) *service.Config {
	return &service.Config{
		Name:        ServiceName,
		DisplayName: "Tor router control plane",
		Description: "Serves router status and privileged maintenance actions to the dashboard.",
		Arguments:   append([]string{"serve"}, args...),
		Dependencies: []string{
			"After=network-online.target",
			"Wants=network-online.target",
		},
	}
}

// Program adapts an Agent to service.Interface.
type Program struct {
	agent  *Agent
	log    *slog.Logger
	cancel context.CancelFunc
	done   chan error
}

// NewProgram returns a Program running a.
func NewProgram(a *Agent, log *slog.Logger) *Program {
	return &Program{agent: a, log: log}
}

func (p *Program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := p.agent.Run(ctx)
		if err != nil {
			p.log.Error("torrouterd stopped", "err", err)
		}
		p.done <- err
		// A failed listener must not leave the service manager thinking
		// we are up.
		if err != nil && !service.Interactive() {
			_ = s.Stop()
		}
	}()
	return nil
}

func (p *Program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case err := <-p.done:
		return err
	case <-time.After(shutdownTimeout + time.Second):
		return nil
	}
}
