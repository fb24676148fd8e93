package main

import (
	"fmt"

	"github.com/kardianos/service"

	"github.com/torrouter/torrouter/internal/agent"
	"github.com/torrouter/torrouter/internal/ui"
)

// InstallCmd registers and starts the system service.
type InstallCmd struct {
	NoStart bool `name:"no-start" help:"Install without starting the service."`
}

func (c *InstallCmd) Run(globals *CLI) error {
	s, err := newService(globals)
	if err != nil {
		return err
	}
	if err := s.Install(); err != nil {
		return fmt.Errorf("install service: %w", err)
	}
	fmt.Println(ui.StepOK("Installed " + agent.ServiceName))
	if c.NoStart {
		return nil
	}
	if err := s.Start(); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	fmt.Println(ui.StepOK("Started " + agent.ServiceName))
	return nil
}

// UninstallCmd stops and removes the system service.
type UninstallCmd struct{}

func (c *UninstallCmd) Run(globals *CLI) error {
	s, err := newService(globals)
	if err != nil {
		return err
	}
	// Stopping a service that is not running is not an error here.
	_ = s.Stop()
	if err := s.Uninstall(); err != nil {
		return fmt.Errorf("uninstall service: %w", err)
	}
	fmt.Println(ui.StepOK("Removed " + agent.ServiceName))
	return nil
}

// newService builds a control-only handle; the installed unit re-execs this
// binary with "serve".
func newService(globals *CLI) (service.Service, error) {
	s, err := service.New(noopProgram{}, agent.ServiceConfig(globals.serviceArgs()))
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return s, nil
}

type noopProgram struct{}

func (noopProgram) Start(service.Service) error { return nil }
func (noopProgram) Stop(service.Service) error  { return nil }

// serviceArgs carries the global flags into the installed unit.
func (c *CLI) serviceArgs() []string {
	return []string{"--config", c.Config, "--env-file", c.EnvFile}
}
